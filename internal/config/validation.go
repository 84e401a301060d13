package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Experiment.validate(); err != nil {
		return err
	}
	if err := c.Sweep.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	return nil
}

func (d *DataConfig) validate() error {
	if strings.TrimSpace(d.ResultsRoot) == "" {
		return fmt.Errorf("data.results_root cannot be empty")
	}
	if d.ArchiveFeedback && strings.TrimSpace(d.ArchivePath) == "" {
		return fmt.Errorf("data.archive_path required when archive_feedback is on")
	}
	return nil
}

func (e *ExperimentConfig) validate() error {
	r := e.Defaults
	if r.NActions < 2 {
		return fmt.Errorf("experiment.defaults.n_actions must be >= 2")
	}
	if r.DimContext < 1 {
		return fmt.Errorf("experiment.defaults.dim_context must be >= 1")
	}
	switch r.RewardType {
	case "binary", "continuous":
	default:
		return fmt.Errorf("experiment.defaults.reward_type must be binary or continuous, got %q", r.RewardType)
	}
	switch r.RewardFunction {
	case "logistic", "linear":
	default:
		return fmt.Errorf("experiment.defaults.reward_function must be logistic or linear, got %q", r.RewardFunction)
	}
	if r.RewardType == "binary" && r.RewardFunction != "logistic" {
		return fmt.Errorf("binary rewards require the logistic reward function")
	}
	return nil
}

func (s *SweepConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Interval) == "" {
		return fmt.Errorf("sweep.interval cannot be empty when sweep is enabled")
	}
	if len(s.Presets) == 0 {
		return fmt.Errorf("sweep.presets requires at least one preset id")
	}
	for _, id := range s.Presets {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("sweep.presets contains an empty preset id")
		}
	}
	return nil
}
