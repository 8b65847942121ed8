// Package systemd renders and checks the cangate@.service unit.
package systemd

// UnitName is the template unit file name. The instance names the config
// under /etc/cangate, e.g. cangate@car.service reads /etc/cangate/car.yaml.
const UnitName = "cangate@.service"

// UnitTemplate returns the cangate@.service unit. The gateway needs raw
// CAN sockets next to its gRPC listener, so AF_CAN stays in the allowed
// address families and CAP_NET_RAW is kept.
func UnitTemplate() string {
	return `[Unit]
Description=cangate safety interlock (%i)
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/usr/local/bin/cangate serve --bridge --config /etc/cangate/%i.yaml --log-format json
Restart=on-failure
RestartSec=1
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=/var/lib/cangate /var/log/cangate
StateDirectory=cangate
LogsDirectory=cangate
RestrictAddressFamilies=AF_CAN AF_INET AF_INET6 AF_UNIX
AmbientCapabilities=CAP_NET_RAW
CapabilityBoundingSet=CAP_NET_RAW

[Install]
WantedBy=multi-user.target
`
}
