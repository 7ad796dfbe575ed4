// Package certdb reads and maintains OpenSSL-style certificate index
// files and exposes them as a validity oracle for the responder.
//
// Index format (tab-separated, one certificate per line):
//
//	status  expiry  revocation[,reason]  serial  filename  subject
//
// status is V (valid), R (revoked) or E (expired); times are in the
// OpenSSL "YYMMDDHHMMSSZ" form.
package certdb

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/verapki/ocspd/internal/responder"
)

// timeLayout is the OpenSSL index timestamp format.
const timeLayout = "060102150405Z"

// Index entry status codes.
const (
	StatusValid   = "V"
	StatusRevoked = "R"
	StatusExpired = "E"
)

// IndexEntry represents one line of the certificate index.
type IndexEntry struct {
	Status     string
	Expiry     time.Time
	Revocation time.Time
	Reason     responder.RevocationReason
	Serial     *big.Int
	Subject    string
}

// Store is an index file on disk. Reads re-parse the file so external
// revocations (e.g. a CA process appending to the same index) are
// picked up without restarting; writes are serialized by the mutex.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store over an index file path. The file does not
// need to exist yet; an absent file reads as an empty index.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the index file path.
func (s *Store) Path() string {
	return s.path
}

// ReadIndex parses the whole index. Malformed lines are skipped, the
// way OpenSSL tooling treats them.
func (s *Store) ReadIndex() ([]IndexEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var entries []IndexEntry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := parseIndexLine(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Lookup returns the index entry for a serial number, or nil if the
// serial is not in the index.
func (s *Store) Lookup(serial *big.Int) (*IndexEntry, error) {
	entries, err := s.ReadIndex()
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Serial.Cmp(serial) == 0 {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Append adds a valid certificate entry to the index.
func (s *Store) Append(serial *big.Int, expiry time.Time, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("%s\t%s\t\t%s\tunknown\t%s\n",
		StatusValid,
		expiry.UTC().Format(timeLayout),
		serialHex(serial),
		subject,
	)
	return s.appendLine(line)
}

// MarkRevoked rewrites the entry for a serial as revoked at the given
// time with the given reason.
func (s *Store) MarkRevoked(serial *big.Int, at time.Time, reason responder.RevocationReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read index file: %w", err)
	}

	target := serialHex(serial)
	found := false
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 6 || !strings.EqualFold(parts[3], target) {
			continue
		}

		parts[0] = StatusRevoked
		parts[2] = fmt.Sprintf("%s,%s", at.UTC().Format(timeLayout), reason.String())
		lines[i] = strings.Join(parts, "\t")
		found = true
	}

	if !found {
		return fmt.Errorf("serial %s not found in index", target)
	}

	return os.WriteFile(s.path, []byte(strings.Join(lines, "\n")), 0644)
}

func (s *Store) appendLine(line string) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to index: %w", err)
	}
	return nil
}

// parseIndexLine parses a single index line.
func parseIndexLine(line string) (IndexEntry, error) {
	var entry IndexEntry
	parts := strings.Split(line, "\t")

	if len(parts) < 6 {
		return entry, fmt.Errorf("malformed index line")
	}

	entry.Status = parts[0]

	if parts[1] != "" {
		if t, err := time.Parse(timeLayout, parts[1]); err == nil {
			entry.Expiry = t
		}
	}

	// Revocation field is "time" or "time,reason".
	if parts[2] != "" {
		revTime, reasonName, hasReason := strings.Cut(parts[2], ",")
		if t, err := time.Parse(timeLayout, revTime); err == nil {
			entry.Revocation = t
		}
		if hasReason {
			if reason, err := responder.ParseRevocationReason(reasonName); err == nil {
				entry.Reason = reason
			}
		}
	}

	serialBytes, err := hex.DecodeString(parts[3])
	if err != nil {
		return entry, fmt.Errorf("invalid serial: %w", err)
	}
	entry.Serial = new(big.Int).SetBytes(serialBytes)

	entry.Subject = parts[5]

	return entry, nil
}

// serialHex formats a serial the way the index stores it: uppercase
// hex, padded to an even number of digits.
func serialHex(serial *big.Int) string {
	h := strings.ToUpper(serial.Text(16))
	if len(h)%2 == 1 {
		h = "0" + h
	}
	return h
}
