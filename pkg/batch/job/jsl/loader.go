package jsl

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

var (
	mu sync.RWMutex
	// loadedJobDefinitions は JobFactory がジョブ種別で定義を取得するためのマップです。
	loadedJobDefinitions = make(map[string]Job)
)

// Parse は JSL YAML のバイトデータを検証済みのジョブ定義に変換します。
func Parse(data []byte) ([]Job, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, exception.NewBatchError("jsl_loader", "JSL ファイルのパースに失敗しました", err, false, false)
	}
	if len(def.Jobs) == 0 {
		return nil, exception.NewConfigurationError("jsl_loader", "JSL ファイルに 'jobs' が定義されていません")
	}

	seen := make(map[string]bool, len(def.Jobs))
	for _, job := range def.Jobs {
		if err := validateJob(job); err != nil {
			return nil, err
		}
		if seen[job.ID] {
			return nil, exception.NewConfigurationError("jsl_loader", fmt.Sprintf("JSL ジョブID '%s' が重複しています", job.ID))
		}
		seen[job.ID] = true
	}
	return def.Jobs, nil
}

func validateJob(job Job) error {
	if job.ID == "" {
		return exception.NewConfigurationError("jsl_loader", "JSL ジョブに 'id' が定義されていません")
	}
	if job.Name == "" {
		return exception.NewConfigurationError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' に 'name' が定義されていません", job.ID))
	}
	if len(job.Steps) == 0 {
		return exception.NewConfigurationError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' に 'steps' が定義されていません", job.ID))
	}
	stepIDs := make(map[string]bool, len(job.Steps))
	for i, s := range job.Steps {
		if s.ID == "" || s.Ref == "" {
			return exception.NewConfigurationError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' の %d 番目のステップに 'id' または 'ref' がありません", job.ID, i+1))
		}
		if stepIDs[s.ID] {
			return exception.NewConfigurationError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' のステップID '%s' が重複しています", job.ID, s.ID))
		}
		stepIDs[s.ID] = true
		if s.Chunk != nil && s.Chunk.ItemCount <= 0 {
			return exception.NewConfigurationError("jsl_loader", fmt.Sprintf("JSL ステップ '%s' の item-count は 1 以上である必要があります", s.ID))
		}
		if _, err := s.SharedParams(); err != nil {
			return err
		}
	}
	return nil
}

// LoadJSLDefinitionFromBytes は JSL YAML のバイトデータからジョブ定義をロードします。
// 既にロード済みのジョブIDが含まれている場合はエラーになり、何もロードしません。
func LoadJSLDefinitionFromBytes(data []byte) error {
	logger.Infof("JSL 定義のロードを開始します。")
	jobs, err := Parse(data)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	for _, job := range jobs {
		if _, exists := loadedJobDefinitions[job.ID]; exists {
			return exception.NewConfigurationError("jsl_loader", fmt.Sprintf("JSL ジョブID '%s' は既にロードされています", job.ID))
		}
	}
	for _, job := range jobs {
		loadedJobDefinitions[job.ID] = job
		logger.Infof("JSL ジョブ '%s' をロードしました。ステップ数: %d", job.ID, len(job.Steps))
	}
	logger.Infof("JSL 定義のロードが完了しました。ロードされたジョブ数: %d", len(loadedJobDefinitions))
	return nil
}

// GetJobDefinition retrieves a JSL Job definition by its ID.
func GetJobDefinition(jobID string) (Job, bool) {
	mu.RLock()
	defer mu.RUnlock()
	job, ok := loadedJobDefinitions[jobID]
	return job, ok
}

// GetLoadedJobCount returns the number of loaded JSL job definitions.
func GetLoadedJobCount() int {
	mu.RLock()
	defer mu.RUnlock()
	return len(loadedJobDefinitions)
}

// Reset はロード済みの定義を全て破棄します。
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	loadedJobDefinitions = make(map[string]Job)
}
