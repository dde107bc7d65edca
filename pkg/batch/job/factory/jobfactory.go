package factory

import (
	"fmt"

	config "harvester/pkg/batch/config"
	core "harvester/pkg/batch/job/core"
	jsl "harvester/pkg/batch/job/jsl"
	"harvester/pkg/batch/job/runner"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// StepBuilder は JSL のステップ定義から core.Step を生成するための関数型です。
// ステップは一回の実行ごとに新しく生成されます。
type StepBuilder func(cfg *config.Config, def jsl.Step) (core.Step, error)

// StepExecutionListenerBuilder は StepExecutionListener を生成するための関数型です。
type StepExecutionListenerBuilder func(cfg *config.Config) (core.StepExecutionListener, error)

// ItemProgressListenerBuilder は ItemProgressListener を生成するための関数型です。
type ItemProgressListenerBuilder func(cfg *config.Config, properties map[string]string) (core.ItemProgressListener, error)

// JobListenerBuilder は JobExecutionListener を生成するための関数型です。
type JobListenerBuilder func(cfg *config.Config) (core.JobExecutionListener, error)

type stepListenerAware interface {
	AddStepListener(l core.StepExecutionListener)
}

type progressListenerAware interface {
	AddItemProgressListener(l core.ItemProgressListener)
}

// JobFactory は JSL 定義と登録済みのビルダーから ProcessingJob を組み立てます。
// 登録は起動時に行い、CreateJob と並行して呼び出さないでください。
type JobFactory struct {
	config                       *config.Config
	stepBuilders                 map[string]StepBuilder
	stepListenerBuilders         map[string]StepExecutionListenerBuilder
	itemProgressListenerBuilders map[string]ItemProgressListenerBuilder
	jobListenerBuilders          map[string]JobListenerBuilder
}

// NewJobFactory は新しい JobFactory のインスタンスを作成します。
func NewJobFactory(cfg *config.Config) *JobFactory {
	return &JobFactory{
		config:                       cfg,
		stepBuilders:                 make(map[string]StepBuilder),
		stepListenerBuilders:         make(map[string]StepExecutionListenerBuilder),
		itemProgressListenerBuilders: make(map[string]ItemProgressListenerBuilder),
		jobListenerBuilders:          make(map[string]JobListenerBuilder),
	}
}

// RegisterStepBuilder は、指定された名前でステップのビルド関数を登録します。
func (f *JobFactory) RegisterStepBuilder(name string, builder StepBuilder) {
	f.stepBuilders[name] = builder
	logger.Debugf("JobFactory: ステップビルダー '%s' を登録しました。", name)
}

// RegisterStepListenerBuilder は、指定された名前で StepExecutionListener ビルド関数を登録します。
func (f *JobFactory) RegisterStepListenerBuilder(name string, builder StepExecutionListenerBuilder) {
	f.stepListenerBuilders[name] = builder
	logger.Debugf("JobFactory: StepExecutionListener ビルダー '%s' を登録しました。", name)
}

// RegisterItemProgressListenerBuilder は、指定された名前で ItemProgressListener ビルド関数を登録します。
func (f *JobFactory) RegisterItemProgressListenerBuilder(name string, builder ItemProgressListenerBuilder) {
	f.itemProgressListenerBuilders[name] = builder
	logger.Debugf("JobFactory: ItemProgressListener ビルダー '%s' を登録しました。", name)
}

// RegisterJobListenerBuilder は、指定された名前で JobExecutionListener ビルド関数を登録します。
func (f *JobFactory) RegisterJobListenerBuilder(name string, builder JobListenerBuilder) {
	f.jobListenerBuilders[name] = builder
	logger.Debugf("JobFactory: JobExecutionListener ビルダー '%s' を登録しました。", name)
}

// CreateJob は指定されたジョブ種別の ProcessingJob を新しい SharedContext とともに作成します。
func (f *JobFactory) CreateJob(jobKind string) (*runner.ProcessingJob, error) {
	logger.Debugf("JobFactory で Job '%s' の作成を試みます。", jobKind)

	jslJob, ok := jsl.GetJobDefinition(jobKind)
	if !ok {
		return nil, exception.NewConfigurationError("job_factory", fmt.Sprintf("指定された Job '%s' のJSL定義が見つかりません", jobKind))
	}

	steps := make([]core.Step, 0, len(jslJob.Steps))
	for _, def := range jslJob.Steps {
		s, err := f.buildStep(def)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}

	var jobListeners []core.JobExecutionListener
	for _, ref := range jslJob.Listeners {
		builder, found := f.jobListenerBuilders[ref.Ref]
		if !found {
			return nil, exception.NewConfigurationError("job_factory", fmt.Sprintf("JobExecutionListener '%s' のビルダーが登録されていません", ref.Ref))
		}
		l, err := builder(f.config)
		if err != nil {
			return nil, exception.NewBatchError("job_factory", fmt.Sprintf("JobExecutionListener '%s' のビルドに失敗しました", ref.Ref), err, false, false)
		}
		jobListeners = append(jobListeners, l)
	}

	logger.Debugf("Job '%s' を JSL 定義から作成しました。ステップ数: %d", jobKind, len(steps))
	return runner.NewProcessingJob(jslJob.ID, steps, core.NewSharedContext(), jobListeners...), nil
}

func (f *JobFactory) buildStep(def jsl.Step) (core.Step, error) {
	builder, found := f.stepBuilders[def.Ref]
	if !found {
		return nil, exception.NewConfigurationError("job_factory", fmt.Sprintf("ステップ '%s' のビルダー '%s' が登録されていません", def.ID, def.Ref))
	}
	s, err := builder(f.config, def)
	if err != nil {
		return nil, exception.NewBatchError("job_factory", fmt.Sprintf("ステップ '%s' のビルドに失敗しました", def.ID), err, false, false)
	}

	for _, ref := range def.Listeners {
		if err := f.attachListener(s, def.ID, ref); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// attachListener は参照名に応じて StepExecutionListener か ItemProgressListener をステップに登録します。
func (f *JobFactory) attachListener(s core.Step, stepID string, ref jsl.ComponentRef) error {
	if builder, ok := f.stepListenerBuilders[ref.Ref]; ok {
		aware, ok := s.(stepListenerAware)
		if !ok {
			return exception.NewConfigurationError("job_factory", fmt.Sprintf("ステップ '%s' は StepExecutionListener を受け付けません", stepID))
		}
		l, err := builder(f.config)
		if err != nil {
			return exception.NewBatchError("job_factory", fmt.Sprintf("StepExecutionListener '%s' のビルドに失敗しました", ref.Ref), err, false, false)
		}
		aware.AddStepListener(l)
		return nil
	}
	if builder, ok := f.itemProgressListenerBuilders[ref.Ref]; ok {
		aware, ok := s.(progressListenerAware)
		if !ok {
			return exception.NewConfigurationError("job_factory", fmt.Sprintf("ステップ '%s' は ItemProgressListener を受け付けません", stepID))
		}
		l, err := builder(f.config, ref.Properties)
		if err != nil {
			return exception.NewBatchError("job_factory", fmt.Sprintf("ItemProgressListener '%s' のビルドに失敗しました", ref.Ref), err, false, false)
		}
		aware.AddItemProgressListener(l)
		return nil
	}
	return exception.NewConfigurationError("job_factory", fmt.Sprintf("リスナー '%s' のビルダーが登録されていません", ref.Ref))
}
