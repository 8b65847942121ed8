package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Head      string `json:"head,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify checks that every entry of the log at path links to the hash of
// the line before it, starting from GenesisHash. Head is the hash of the
// last line of an intact chain.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()
	return walkChain(f, true)
}

// walkChain scans JSONL entries from r. With check set, each prev_hash must
// match the running head; otherwise only the head is computed.
func walkChain(r io.Reader, check bool) VerifyResult {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	head := GenesisHash
	n := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		n++
		if check {
			var entry struct {
				PrevHash string `json:"prev_hash"`
			}
			if err := json.Unmarshal(line, &entry); err != nil {
				return VerifyResult{Lines: n - 1, Error: fmt.Sprintf("parse error: %v", err), ErrorLine: n}
			}
			if entry.PrevHash != head {
				msg := fmt.Sprintf("hash mismatch: expected %s, got %s", head, entry.PrevHash)
				if n == 1 {
					msg = fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash)
				}
				return VerifyResult{Lines: n - 1, Error: msg, ErrorLine: n}
			}
		}
		head = HashLine(line)
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Lines: n, Error: fmt.Sprintf("scan: %v", err)}
	}

	res := VerifyResult{Valid: true, Lines: n}
	if n > 0 {
		res.Head = head
	}
	return res
}
