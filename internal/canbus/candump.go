package canbus

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/cangate/internal/model"
)

// ErrBadCandump is returned for lines that are not candump -l output.
var ErrBadCandump = errors.New("canbus: malformed candump line")

// LogFrame is one line of a candump log: "(1700000000.123456) can0 399#0005000000000000".
type LogFrame struct {
	Time  time.Time
	Iface string
	Frame model.Frame
}

// ParseCandumpLine parses one candump log line. The frame's Bus is left 0;
// callers map Iface to a bus.
func ParseCandumpLine(line string) (LogFrame, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return LogFrame{}, fmt.Errorf("%w: %q", ErrBadCandump, line)
	}

	ts := strings.TrimSuffix(strings.TrimPrefix(fields[0], "("), ")")
	if len(ts) == len(fields[0]) {
		return LogFrame{}, fmt.Errorf("%w: timestamp %q", ErrBadCandump, fields[0])
	}
	t, err := parseTimestamp(ts)
	if err != nil {
		return LogFrame{}, err
	}

	id, data, ok := strings.Cut(fields[2], "#")
	if !ok || strings.HasPrefix(data, "#") || strings.HasPrefix(data, "R") {
		return LogFrame{}, fmt.Errorf("%w: unsupported frame %q", ErrBadCandump, fields[2])
	}
	if len(id) != 3 && len(id) != 8 {
		return LogFrame{}, fmt.Errorf("%w: identifier %q", ErrBadCandump, id)
	}
	addr, err := strconv.ParseUint(id, 16, 32)
	if err != nil {
		return LogFrame{}, fmt.Errorf("%w: identifier %q", ErrBadCandump, id)
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(data, ".", ""))
	if err != nil {
		return LogFrame{}, fmt.Errorf("%w: payload %q", ErrBadCandump, data)
	}
	f, err := model.NewFrame(0, uint32(addr), raw)
	if err != nil {
		return LogFrame{}, fmt.Errorf("%w: %v", ErrBadCandump, err)
	}
	return LogFrame{Time: t, Iface: fields[1], Frame: f}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	sec, frac, _ := strings.Cut(s, ".")
	secs, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrBadCandump, s)
	}
	var nanos int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nanos, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrBadCandump, s)
		}
	}
	return time.Unix(secs, nanos).UTC(), nil
}

// FormatCandumpLine renders lf in candump -l form.
func FormatCandumpLine(lf LogFrame) string {
	id := fmt.Sprintf("%03X", lf.Frame.Addr)
	if lf.Frame.Extended() {
		id = fmt.Sprintf("%08X", lf.Frame.Addr)
	}
	return fmt.Sprintf("(%d.%06d) %s %s#%s",
		lf.Time.Unix(), lf.Time.Nanosecond()/1000, lf.Iface, id, strings.ToUpper(lf.Frame.HexData()))
}

// ReadCandump parses every non-empty line of r. Blank lines and lines
// starting with '#' are skipped.
func ReadCandump(r io.Reader) ([]LogFrame, error) {
	var out []LogFrame
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lf, err := ParseCandumpLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out = append(out, lf)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("canbus: read candump: %w", err)
	}
	return out, nil
}

// WriteCandump writes frames in candump -l form, one per line.
func WriteCandump(w io.Writer, frames []LogFrame) error {
	bw := bufio.NewWriter(w)
	for _, lf := range frames {
		if _, err := bw.WriteString(FormatCandumpLine(lf) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// BusMap assigns bus indexes to interface names.
type BusMap map[string]uint8

// NewBusMap maps ifaces[i] to bus i. Empty names are skipped.
func NewBusMap(ifaces []string) BusMap {
	m := BusMap{}
	for i, name := range ifaces {
		if name != "" {
			m[name] = uint8(i)
		}
	}
	return m
}

// Bus returns the bus index for iface.
func (m BusMap) Bus(iface string) (uint8, bool) {
	b, ok := m[iface]
	return b, ok
}
