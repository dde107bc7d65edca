package jsl

import core "harvester/pkg/batch/job/core"

// Definition は JSL ファイル全体の構造です。一つのファイルに複数のジョブ種別を定義できます。
type Definition struct {
	Jobs []Job `yaml:"jobs"`
}

// Job は一つのジョブ種別の定義です。ステップは記述された順に実行されます。
type Job struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Steps       []Step         `yaml:"steps"`
	Listeners   []ComponentRef `yaml:"listeners,omitempty"` // Job-level listeners
}

// Step はジョブ内の一つのステップです。Ref は JobFactory に登録されたステップビルダーの名前です。
type Step struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Ref         string            `yaml:"ref"`
	Chunk       *Chunk            `yaml:"chunk,omitempty"` // チャンク指向の場合
	Properties  map[string]string `yaml:"properties,omitempty"`
	Listeners   []ComponentRef    `yaml:"listeners,omitempty"`
	// RequiredParams は PreStep で存在を確認する SharedContext のキーです。
	RequiredParams []string `yaml:"required-params,omitempty"`
}

// ComponentRef refers to a registered component (listener など).
type ComponentRef struct {
	Ref        string            `yaml:"ref"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Chunk defines chunk-oriented processing properties for a step.
type Chunk struct {
	ItemCount int `yaml:"item-count"`
	SkipLimit int `yaml:"skip-limit,omitempty"`
}

// SharedParams は RequiredParams を SharedParameter に変換します。
func (s Step) SharedParams() ([]core.SharedParameter, error) {
	params := make([]core.SharedParameter, 0, len(s.RequiredParams))
	for _, p := range s.RequiredParams {
		sp, err := core.ParseSharedParameter(p)
		if err != nil {
			return nil, err
		}
		params = append(params, sp)
	}
	return params, nil
}

// Property はプロパティ値を返します。未設定の場合は def を返します。
func (s Step) Property(key, def string) string {
	if v, ok := s.Properties[key]; ok && v != "" {
		return v
	}
	return def
}
