// Package presets 管理 YAML 里声明的命名实验配置，支持热更新与参数覆盖校验。
package presets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"banditlab/internal/experiment"
	"banditlab/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Preset 描述单个命名实验。字段为空时回落到服务端默认配置。
type Preset struct {
	ID          string `mapstructure:"id" yaml:"id"`
	Description string `mapstructure:"description" yaml:"description"`
	Version     int    `mapstructure:"version" yaml:"version"`

	NActions       int      `mapstructure:"n_actions" yaml:"n_actions"`
	DimContext     int      `mapstructure:"dim_context" yaml:"dim_context"`
	Beta           *float64 `mapstructure:"beta" yaml:"beta"`
	RewardType     string   `mapstructure:"reward_type" yaml:"reward_type"`
	RewardFunction string   `mapstructure:"reward_function" yaml:"reward_function"`
	RoundsTrain    int      `mapstructure:"rounds_train" yaml:"rounds_train"`
	RoundsTest     int      `mapstructure:"rounds_test" yaml:"rounds_test"`
	Seed           *int64   `mapstructure:"seed" yaml:"seed"`
	FeedbackPath   string   `mapstructure:"feedback_path" yaml:"feedback_path"`

	// Schema 限制提交时允许的覆盖参数（JSON Schema）。
	Schema map[string]interface{} `mapstructure:"schema" yaml:"schema"`

	schemaCompiled *jsonschema.Schema
}

// FileConfig 映射 experiments 文件。
type FileConfig struct {
	Experiments map[string]Preset `mapstructure:"experiments" yaml:"experiments"`
}

// Snapshot 公开的 preset 快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Preset
}

// ChangeListener 在 registry 重载时触发。
type ChangeListener func(Snapshot)

// Registry 管理实验 preset。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取 preset 文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("preset registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read preset config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("preset reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前 preset 集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Preset 返回指定 ID 的 preset。
func (r *Registry) Preset(id string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Presets[strings.TrimSpace(id)]
	return p, ok
}

// IDs 返回排序后的 preset ID 列表。
func (r *Registry) IDs() []string {
	snap := r.Snapshot()
	out := make([]string, 0, len(snap.Presets))
	for id := range snap.Presets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Subscribe 注册重载回调。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[string]Preset)
	for name, p := range cfg.Experiments {
		norm := normalizePreset(name, p)
		presets[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("Preset registry loaded %d experiments from %s", len(presets), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("preset listener")
			cb(snap)
		}(fn)
	}
}

func normalizePreset(name string, p Preset) Preset {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = strings.TrimSpace(name)
	}
	if p.Version <= 0 {
		p.Version = 1
	}
	p.Description = strings.TrimSpace(p.Description)
	if len(p.Schema) > 0 {
		if compiled, err := compileSchema(p.Schema); err != nil {
			logger.Errorf("preset schema compile failed id=%s: %v", p.ID, err)
		} else {
			p.schemaCompiled = compiled
		}
	}
	return p
}

// BuildConfig 先把 preset 覆盖进默认配置，再应用调用方传入的覆盖参数。
func (p Preset) BuildConfig(defaults experiment.RunConfig, overrides map[string]any) (experiment.RunConfig, error) {
	cfg := defaults
	cfg.Name = p.ID
	if p.NActions > 0 {
		cfg.NActions = p.NActions
	}
	if p.DimContext > 0 {
		cfg.DimContext = p.DimContext
	}
	if p.Beta != nil {
		cfg.Beta = *p.Beta
	}
	if p.RewardType != "" {
		cfg.RewardType = p.RewardType
	}
	if p.RewardFunction != "" {
		cfg.RewardFunction = p.RewardFunction
	}
	if p.RoundsTrain > 0 {
		cfg.RoundsTrain = p.RoundsTrain
	}
	if p.RoundsTest > 0 {
		cfg.RoundsTest = p.RoundsTest
	}
	if p.Seed != nil {
		cfg.Seed = *p.Seed
	}
	if p.FeedbackPath != "" {
		cfg.FeedbackPath = p.FeedbackPath
	}
	if len(overrides) == 0 {
		return cfg, nil
	}
	if err := p.validateOverrides(overrides); err != nil {
		return experiment.RunConfig{}, err
	}
	if err := applyOverrides(&cfg, overrides); err != nil {
		return experiment.RunConfig{}, err
	}
	return cfg, nil
}

func (p Preset) validateOverrides(params map[string]any) error {
	if p.schemaCompiled == nil {
		return nil
	}
	return p.schemaCompiled.Validate(sanitizeParams(params))
}

// applyOverrides 只认识可调的实验参数，未知键报错比静默吞掉好排查。
func applyOverrides(cfg *experiment.RunConfig, params map[string]any) error {
	for key, raw := range params {
		switch key {
		case "n_actions":
			n, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("override %s: %w", key, err)
			}
			cfg.NActions = n
		case "dim_context":
			n, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("override %s: %w", key, err)
			}
			cfg.DimContext = n
		case "beta":
			f, err := asFloat(raw)
			if err != nil {
				return fmt.Errorf("override %s: %w", key, err)
			}
			cfg.Beta = f
		case "rounds_train":
			n, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("override %s: %w", key, err)
			}
			cfg.RoundsTrain = n
		case "rounds_test":
			n, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("override %s: %w", key, err)
			}
			cfg.RoundsTest = n
		case "seed":
			n, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("override %s: %w", key, err)
			}
			cfg.Seed = int64(n)
		case "reward_type":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("override %s: expected string", key)
			}
			cfg.RewardType = s
		default:
			return fmt.Errorf("unknown override parameter: %s", key)
		}
	}
	return nil
}

func asInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", val)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Presets:  make(map[string]Preset, len(src.Presets)),
	}
	for id, p := range src.Presets {
		dst.Presets[id] = p
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func compileSchema(data map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readPresetFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read preset config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse preset config failed: %w", err)
	}
	return cfg, nil
}

// sanitizeParams 递归把字符串形式的数字转成 float64，兼容表单与脚本提交。
func sanitizeParams(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = sanitizeParams(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = sanitizeParams(child)
		}
		return out
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return val
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num
		}
		return val
	default:
		return val
	}
}
