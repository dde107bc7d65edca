package app

import (
	"context"

	"harvester/example/harvester/domain/entity"
	appRepo "harvester/example/harvester/repository"
	appProcessor "harvester/example/harvester/step/processor"
	appReader "harvester/example/harvester/step/reader"
	appTasklet "harvester/example/harvester/step/tasklet"
	config "harvester/pkg/batch/config"
	"harvester/pkg/batch/database"
	core "harvester/pkg/batch/job/core"
	factory "harvester/pkg/batch/job/factory"
	jsl "harvester/pkg/batch/job/jsl"
	"harvester/pkg/batch/step"
	steplistener "harvester/pkg/batch/step/listener"
	"harvester/pkg/batch/step/writer"
	"harvester/pkg/batch/task"
	logger "harvester/pkg/batch/util/logger"
)

// registerApplicationComponents はハーベスター固有のステップビルダーを JobFactory に登録します。
func registerApplicationComponents(jobFactory *factory.JobFactory, db database.DBConnection, buffer appRepo.BufferRepository, resources appRepo.ResourceRepository) {
	jobFactory.RegisterStepBuilder("fetchArchiveTasklet", func(cfg *config.Config, def jsl.Step) (core.Step, error) {
		params, err := def.SharedParams()
		if err != nil {
			return nil, err
		}
		t := appTasklet.NewFetchArchiveTasklet(resources, cfg.Harvester, def.Property("core-file", appTasklet.DefaultCoreFile))
		return step.NewTaskletStep(def.ID, t, params...), nil
	})

	jobFactory.RegisterStepBuilder("clearBufferTasklet", func(cfg *config.Config, def jsl.Step) (core.Step, error) {
		return step.NewTaskletStep(def.ID, appTasklet.NewDatasetTasklet(def.ID, buffer.DeleteDataset), core.ParamDatasetShortname), nil
	})

	jobFactory.RegisterStepBuilder("occurrenceChunkStep", func(cfg *config.Config, def jsl.Step) (core.Step, error) {
		params, err := def.SharedParams()
		if err != nil {
			return nil, err
		}
		chunkSize, skipLimit := cfg.Batch.ChunkSize, cfg.Batch.ItemSkip.SkipLimit
		if def.Chunk != nil {
			chunkSize = def.Chunk.ItemCount
			if def.Chunk.SkipLimit > 0 {
				skipLimit = def.Chunk.SkipLimit
			}
		}
		w := writer.NewSQLBatchWriter[entity.OccurrenceRaw](def.ID, db, writer.BatchInserterFunc[entity.OccurrenceRaw](buffer.InsertOccurrences))
		return step.NewChunkStep[entity.DwcRecord, entity.OccurrenceRaw](
			def.ID,
			appReader.NewOccurrenceReader(),
			appProcessor.NewOccurrenceProcessor(),
			w,
			chunkSize,
			step.WithSkipLimit[entity.DwcRecord, entity.OccurrenceRaw](skipLimit),
			step.WithRequiredParams[entity.DwcRecord, entity.OccurrenceRaw](params...),
			step.WithProcessListener[entity.DwcRecord, entity.OccurrenceRaw](steplistener.NewLoggingItemProcessListener()),
			step.WithWriteListener[entity.DwcRecord, entity.OccurrenceRaw](steplistener.NewLoggingItemWriteListener()),
			step.WithSkipListener[entity.DwcRecord, entity.OccurrenceRaw](steplistener.NewLoggingSkipListener()),
			step.WithCompletionHook[entity.DwcRecord, entity.OccurrenceRaw](publishRecordCount),
		), nil
	})

	jobFactory.RegisterStepBuilder("completenessTaskStep", func(cfg *config.Config, def jsl.Step) (core.Step, error) {
		watcher := task.NewCheckProcessingCompletenessTask(
			buffer,
			task.WithPollInterval(cfg.Batch.CompletionCheck.PollInterval()),
			task.WithStallThreshold(cfg.Batch.CompletionCheck.StallThreshold),
			task.WithProgressLabel(def.Property("label", "occurrence")),
		)
		return step.NewTaskStep(def.ID, watcher), nil
	})

	jobFactory.RegisterStepBuilder("moveToPublicTasklet", func(cfg *config.Config, def jsl.Step) (core.Step, error) {
		return step.NewTaskletStep(def.ID, appTasklet.NewDatasetTasklet(def.ID, buffer.MoveToPublic), core.ParamDatasetShortname), nil
	})

	jobFactory.RegisterStepBuilder("uniqueValuesTasklet", func(cfg *config.Config, def jsl.Step) (core.Step, error) {
		return step.NewTaskletStep(def.ID, appTasklet.FuncTasklet(buffer.ComputeUniqueValues)), nil
	})

	logger.Debugf("全てのアプリケーションステップビルダーを登録しました。")
}

// publishRecordCount は書き込んだ件数を完了確認の期待件数として SharedContext に設定します。
func publishRecordCount(ctx context.Context, sc *core.SharedContext, se *core.StepExecution) error {
	sc.Put(core.ParamNumberOfRecords, se.WriteCount)
	logger.Infof("ステップ '%s': 期待件数 %d を設定しました。", se.StepName, se.WriteCount)
	return nil
}
