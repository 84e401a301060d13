package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// feedbackRecordSchema 约束导入的单条日志记录。
const feedbackRecordSchema = `{
  "type": "object",
  "required": ["context", "action", "reward", "pscore"],
  "properties": {
    "context": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "number"}
    },
    "action": {"type": "integer", "minimum": 0},
    "reward": {"type": "number"},
    "pscore": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "expected_reward": {
      "type": "array",
      "items": {"type": "number"}
    }
  }
}`

var recordSchema = jsonschema.MustCompileString("feedback_record.json", feedbackRecordSchema)

// ImportJSONL 从 JSON Lines 文件读取外部记录的 bandit 日志。
// 每行一条记录；任何一行不合法都会带行号报错并放弃整个导入。
func ImportJSONL(path string, nActions int) (*Feedback, error) {
	if nActions < 2 {
		return nil, fmt.Errorf("import requires n_actions >= 2, got %d", nActions)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feedback log: %w", err)
	}
	defer f.Close()

	fb := &Feedback{NActions: nActions}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := appendRecord(fb, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feedback log: %w", err)
	}
	if fb.NRounds == 0 {
		return nil, fmt.Errorf("feedback log %s contains no records", path)
	}
	// 导入日志可以不带期望奖励，但要么全有要么全无
	if fb.ExpectedReward != nil && len(fb.ExpectedReward) != fb.NRounds {
		return nil, fmt.Errorf("expected_reward present on %d of %d records", len(fb.ExpectedReward), fb.NRounds)
	}
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	return fb, nil
}

func appendRecord(fb *Feedback, line string) error {
	if !gjson.Valid(line) {
		return fmt.Errorf("invalid JSON")
	}
	var doc any
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		return err
	}
	if err := recordSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema violation: %v", err)
	}

	parsed := gjson.Parse(line)
	ctxVals := parsed.Get("context").Array()
	x := make([]float64, len(ctxVals))
	for i, v := range ctxVals {
		x[i] = v.Float()
	}
	action := int(parsed.Get("action").Int())
	if action >= fb.NActions {
		return fmt.Errorf("action %d out of range [0,%d)", action, fb.NActions)
	}

	fb.Context = append(fb.Context, x)
	fb.Action = append(fb.Action, action)
	fb.Reward = append(fb.Reward, parsed.Get("reward").Float())
	fb.Pscore = append(fb.Pscore, parsed.Get("pscore").Float())

	if exp := parsed.Get("expected_reward"); exp.Exists() {
		vals := exp.Array()
		if len(vals) != fb.NActions {
			return fmt.Errorf("expected_reward has %d entries, want %d", len(vals), fb.NActions)
		}
		row := make([]float64, len(vals))
		for i, v := range vals {
			row[i] = v.Float()
		}
		fb.ExpectedReward = append(fb.ExpectedReward, row)
	}
	fb.NRounds++
	return nil
}
