package config

// Config 是 banditlab 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Data       DataConfig       `toml:"data"`
	Experiment ExperimentConfig `toml:"experiment"`
	Presets    PresetsConfig    `toml:"presets"`
	Sweep      SweepConfig      `toml:"sweep"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	HTTPAddr    string `toml:"http_addr"`
	LogPath     string `toml:"log_path"`
	TraceLog    string `toml:"trace_log_path"`
	TraceEpochs bool   `toml:"trace_epochs"`
}

// DataConfig 控制结果库与反馈归档的落盘位置。
type DataConfig struct {
	ResultsRoot     string `toml:"results_root"`
	ArchivePath     string `toml:"archive_path"`
	ArchiveFeedback bool   `toml:"archive_feedback"`
}

type ExperimentConfig struct {
	MaxConcurrent int         `toml:"max_concurrent"`
	Defaults      RunDefaults `toml:"defaults"`
}

// RunDefaults 是未被请求覆盖时采用的实验参数。
type RunDefaults struct {
	NActions       int     `toml:"n_actions"`
	DimContext     int     `toml:"dim_context"`
	Beta           float64 `toml:"beta"`
	RewardType     string  `toml:"reward_type"`     // "binary" | "continuous"
	RewardFunction string  `toml:"reward_function"` // "logistic" | "linear"
	RoundsTrain    int     `toml:"rounds_train"`
	RoundsTest     int     `toml:"rounds_test"`
	Seed           int64   `toml:"seed"`

	IPW IPWConfig `toml:"ipw"`
	NN  NNConfig  `toml:"nn"`
}

type IPWConfig struct {
	Epochs       int     `toml:"epochs"`
	LearningRate float64 `toml:"learning_rate"`
	L2           float64 `toml:"l2"`
}

type NNConfig struct {
	HiddenSize   int     `toml:"hidden_size"`
	Epochs       int     `toml:"epochs"`
	BatchSize    int     `toml:"batch_size"`
	LearningRate float64 `toml:"learning_rate"`
	L2           float64 `toml:"l2"`
	MaxWeight    float64 `toml:"max_weight"` // 重要性权重截断上限，<=0 表示不截断
}

type PresetsConfig struct {
	Path string `toml:"path"`
}

// SweepConfig 控制周期性重跑 preset 的调度。
type SweepConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval string   `toml:"interval"`
	Presets  []string `toml:"presets"`
}
