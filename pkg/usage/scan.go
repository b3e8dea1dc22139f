package usage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starlink-awaken/omo-quota/pkg/model"
)

// Scanner walks session log roots and tallies assistant messages per provider
// for the current calendar month.
type Scanner struct {
	roots  []string
	logger *slog.Logger
	now    func() time.Time
}

// NewScanner creates a scanner over roots. Missing roots are ignored.
func NewScanner(roots []string, logger *slog.Logger) *Scanner {
	return &Scanner{
		roots:  uniqueRoots(roots),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source used to pick the month.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

// Roots returns the de-duplicated roots.
func (s *Scanner) Roots() []string {
	return s.roots
}

// Scan reads every *.jsonl and *.json file under the roots.
func (s *Scanner) Scan(ctx context.Context) (Summary, error) {
	now := s.now()
	month := model.MonthKey(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	sc := &scan{
		ctx:     ctx,
		month:   month,
		loc:     now.Location(),
		logger:  s.logger,
		seen:    make(map[string]struct{}),
		summary: Summary{Month: month, Providers: make(map[string]ProviderUsage)},
	}

	for _, root := range s.roots {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		// Files untouched since before the month started cannot hold this month's entries.
		if err := walkRoot(ctx, root, monthStart.AddDate(0, 0, -1), sc.file); err != nil {
			return Summary{}, err
		}
	}
	return sc.summary, nil
}

func uniqueRoots(roots []string) []string {
	unique := make([]string, 0, len(roots))
	seen := map[string]struct{}{}
	for _, raw := range roots {
		root := strings.TrimSpace(raw)
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		unique = append(unique, root)
	}
	return unique
}

func walkRoot(ctx context.Context, root string, minMTime time.Time, onFile func(path string) error) error {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat usage root %s: %w", root, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".jsonl") && !strings.HasSuffix(name, ".json") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(minMTime) {
			return nil
		}
		return onFile(path)
	})
}

type scan struct {
	ctx     context.Context
	month   string
	loc     *time.Location
	logger  *slog.Logger
	seen    map[string]struct{}
	summary Summary
}

func (sc *scan) file(path string) error {
	sc.summary.Files++
	if strings.HasSuffix(path, ".jsonl") {
		return sc.lines(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read session file %s: %w", path, err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		sc.summary.Skipped++
		return nil
	}
	sc.entry(obj)
	return nil
}

func (sc *scan) lines(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open session log %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			sc.summary.Skipped++
			continue
		}
		sc.entry(obj)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan session log %s: %w", path, err)
	}
	return nil
}

func (sc *scan) entry(obj map[string]any) {
	rec, ok := parseRecord(obj)
	if !ok {
		return
	}
	if rec.ts.IsZero() || model.MonthKey(rec.ts.In(sc.loc)) != sc.month {
		return
	}
	if rec.id != "" {
		if _, dup := sc.seen[rec.id]; dup {
			return
		}
		sc.seen[rec.id] = struct{}{}
	}

	p := sc.summary.Providers[rec.provider]
	p.Requests++
	if rec.hasTokens {
		p.InputTokens += rec.input
		p.OutputTokens += rec.output
	} else if rec.text != "" {
		n, err := EstimateTokens(rec.text, rec.provider, rec.model)
		if err != nil {
			sc.logger.Debug("estimate tokens", "provider", rec.provider, "error", err)
			n = estimateByLength(rec.text)
		}
		p.OutputTokens += n
		p.Estimated++
	}
	sc.summary.Providers[rec.provider] = p
}

type record struct {
	id        string
	provider  string
	model     string
	ts        time.Time
	input     int64
	output    int64
	hasTokens bool
	text      string
}

// parseRecord understands two shapes: Claude-style transcript lines
// ({"type":"assistant","message":{...,"usage":{...}}}) and opencode message
// files ({"role":"assistant","providerID":...,"tokens":{...}}).
func parseRecord(obj map[string]any) (record, bool) {
	if message := mapValue(obj["message"]); stringValue(obj["type"]) == "assistant" && message != nil {
		rec := record{
			id:    firstNonEmpty(stringValue(message["id"]), stringValue(obj["uuid"])),
			model: stringValue(message["model"]),
			ts:    parseTime(obj["timestamp"]),
			text:  contentText(message["content"]),
		}
		if requestID := stringValue(obj["requestId"]); rec.id != "" && requestID != "" {
			rec.id += ":" + requestID
		}
		rec.provider = firstNonEmpty(stringValue(obj["provider"]), providerForModel(rec.model))
		if u := mapValue(message["usage"]); len(u) > 0 {
			rec.input = nonNegative(int64Value(u["input_tokens"])) +
				nonNegative(int64Value(u["cache_read_input_tokens"])) +
				nonNegative(int64Value(u["cache_creation_input_tokens"]))
			rec.output = nonNegative(int64Value(u["output_tokens"]))
			rec.hasTokens = rec.input > 0 || rec.output > 0
		}
		return rec, true
	}

	if stringValue(obj["role"]) == "assistant" {
		rec := record{
			id:    stringValue(obj["id"]),
			model: stringValue(obj["modelID"]),
			text:  contentText(obj["content"]),
		}
		rec.provider = firstNonEmpty(stringValue(obj["providerID"]), providerForModel(rec.model))
		if t := mapValue(obj["time"]); t != nil {
			rec.ts = parseTime(t["created"])
		} else {
			rec.ts = parseTime(obj["timestamp"])
		}
		if tk := mapValue(obj["tokens"]); len(tk) > 0 {
			rec.input = nonNegative(int64Value(tk["input"]))
			rec.output = nonNegative(int64Value(tk["output"])) + nonNegative(int64Value(tk["reasoning"]))
			if cache := mapValue(tk["cache"]); cache != nil {
				rec.input += nonNegative(int64Value(cache["read"])) + nonNegative(int64Value(cache["write"]))
			}
			rec.hasTokens = rec.input > 0 || rec.output > 0
		}
		return rec, true
	}

	return record{}, false
}

// providerForModel guesses the provider id from a model name when the log
// does not name it.
func providerForModel(model string) string {
	m := strings.ToLower(model)
	if i := strings.Index(m, "/"); i > 0 {
		return m[:i]
	}
	switch {
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "openai"
	case strings.HasPrefix(m, "gemini"):
		return "google"
	case strings.HasPrefix(m, "glm"):
		return "zhipu"
	case strings.HasPrefix(m, "deepseek"):
		return "deepseek"
	case strings.HasPrefix(m, "qwen"):
		return "alibaba"
	case m == "":
		return "unknown"
	default:
		return m
	}
}

func contentText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, part := range c {
			if m := mapValue(part); m != nil {
				b.WriteString(stringValue(m["text"]))
			}
		}
		return b.String()
	default:
		return ""
	}
}

// parseTime accepts RFC 3339 strings and Unix epoch milliseconds.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t)); err == nil {
			return ts
		}
	case float64:
		if t > 0 {
			return time.UnixMilli(int64(t))
		}
	}
	return time.Time{}
}

func mapValue(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func int64Value(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
