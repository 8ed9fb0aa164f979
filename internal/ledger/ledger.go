// Package ledger keeps the append-only usage records: the processed-video
// counter and the quality ratings log.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	CounterFile   = "counter.csv"
	RatingsFile   = "ratings.csv"
	counterHeader = "processed_count,timestamp"
	ratingsHeader = "timestamp,rating"

	// TimestampLayout is UTC ISO-8601 with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

var ErrInvalidRating = errors.New("rating must be an integer 1..5")

// Clock is overridden in tests.
var Clock = time.Now

func stamp() string {
	return Clock().UTC().Format(TimestampLayout)
}

// Counter is the processed-video log. The current count is the first field
// of the last row; rows are only ever appended.
type Counter struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func NewCounter(path string) *Counter {
	return &Counter{path: path, lock: flock.New(path + ".lock")}
}

func (c *Counter) Path() string { return c.path }

// Ensure writes the header when the log is missing, empty or lacks it. A
// headerless legacy file keeps its count as the first row.
func (c *Counter) Ensure() error {
	data, err := os.ReadFile(c.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read counter: %w", err)
	}
	if bytes.HasPrefix(data, []byte("processed_count")) {
		return nil
	}

	content := counterHeader + "\n"
	if n, ok := legacyCount(string(data)); ok {
		content += fmt.Sprintf("%d,%s\n", n, stamp())
	}
	if err := os.WriteFile(c.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write counter header: %w", err)
	}
	return nil
}

// Read returns the current count; header-only or unparsable logs read as 0.
func (c *Counter) Read() (int, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return parseCount(string(data)), nil
}

// RecordCompletion appends count+1 and returns it. The read and the append
// happen under an exclusive file lock shared by every process using the log.
func (c *Counter) RecordCompletion() (int, error) {
	// flock.Flock is re-entrant per instance, so goroutines serialize here first.
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.Lock(); err != nil {
		return 0, fmt.Errorf("lock counter: %w", err)
	}
	defer c.lock.Unlock()

	if err := c.Ensure(); err != nil {
		return 0, err
	}
	n, err := c.Read()
	if err != nil {
		return 0, err
	}
	n++
	if err := appendLine(c.path, fmt.Sprintf("%d,%s", n, stamp())); err != nil {
		return 0, fmt.Errorf("append counter row: %w", err)
	}
	return n, nil
}

func parseCount(content string) int {
	lines := nonEmptyLines(content)
	if len(lines) <= 1 {
		return 0
	}
	first, _, _ := strings.Cut(lines[len(lines)-1], ",")
	n, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0
	}
	return n
}

// legacyCount reads the count of a headerless log: the first field of the
// last row, or else the last integer token anywhere in it.
func legacyCount(content string) (int, bool) {
	lines := nonEmptyLines(content)
	if len(lines) == 0 {
		return 0, false
	}
	first, _, _ := strings.Cut(lines[len(lines)-1], ",")
	if n, err := strconv.Atoi(strings.TrimSpace(first)); err == nil {
		return n, true
	}
	return lastNumber(content)
}

// lastNumber finds the last integer token in legacy counter content.
func lastNumber(content string) (int, bool) {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func nonEmptyLines(content string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Ratings is the append-only quality rating log.
type Ratings struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func NewRatings(path string) *Ratings {
	return &Ratings{path: path, lock: flock.New(path + ".lock")}
}

func (r *Ratings) Path() string { return r.path }

// Record appends a rating row. Anything outside 1..5 is rejected and
// nothing is written.
func (r *Ratings) Record(rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("lock ratings: %w", err)
	}
	defer r.lock.Unlock()

	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(r.path, []byte(ratingsHeader+"\n"), 0o644); err != nil {
			return fmt.Errorf("write ratings header: %w", err)
		}
	}
	if err := appendLine(r.path, fmt.Sprintf("%s,%d", stamp(), rating)); err != nil {
		return fmt.Errorf("append rating: %w", err)
	}
	return nil
}

// ParseRating accepts only base-10 integers in 1..5.
func ParseRating(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 5 {
		return 0, ErrInvalidRating
	}
	return n, nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
