package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/Azure/go-asynctask"
	"github.com/google/uuid"

	exception "harvester/pkg/batch/util/exception"
)

// JobStatus はジョブ/ステップ実行の状態を表します。
type JobStatus string

const (
	BatchStatusNotStarted JobStatus = "NOT_STARTED"
	BatchStatusRunning    JobStatus = "RUNNING"
	BatchStatusCompleted  JobStatus = "COMPLETED"
	BatchStatusFailed     JobStatus = "FAILED"
	BatchStatusCancelled  JobStatus = "CANCELLED"
)

// IsFinished は JobStatus が終了状態かどうかを判定するヘルパーメソッドです。
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// JobExecution はジョブの単一の実行を表します。
// 状態は NOT_STARTED → RUNNING → (COMPLETED | FAILED | CANCELLED) の順にのみ遷移し、
// 終了状態になった後は変更されません。表示側が別ゴルーチンから読むためロックで保護しています。
type JobExecution struct {
	ID         string
	JobName    string
	CreateTime time.Time

	mu              sync.RWMutex
	status          JobStatus
	startTime       time.Time
	endTime         time.Time
	failure         error
	currentStepName string
	stepExecutions  []*StepExecution
}

// NewJobExecution は NOT_STARTED 状態の JobExecution を作成します。
func NewJobExecution(jobName string) *JobExecution {
	return &JobExecution{
		ID:         uuid.New().String(),
		JobName:    jobName,
		CreateTime: time.Now(),
		status:     BatchStatusNotStarted,
	}
}

// Status は現在の状態を返します。
func (je *JobExecution) Status() JobStatus {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.status
}

// Failure は最初に記録されたエラーを返します。
func (je *JobExecution) Failure() error {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.failure
}

// MarkAsRunning は NOT_STARTED から RUNNING に遷移させ、開始時刻を記録します。
func (je *JobExecution) MarkAsRunning() error {
	je.mu.Lock()
	defer je.mu.Unlock()
	if je.status != BatchStatusNotStarted {
		return exception.NewConfigurationError("job_execution", fmt.Sprintf("JobExecution (ID: %s) は %s 状態のため開始できません", je.ID, je.status))
	}
	je.status = BatchStatusRunning
	je.startTime = time.Now()
	return nil
}

// MarkAsCompleted は COMPLETED に遷移させます。
func (je *JobExecution) MarkAsCompleted() bool {
	return je.finish(BatchStatusCompleted, nil)
}

// MarkAsFailed は FAILED に遷移させ、エラーを記録します。
func (je *JobExecution) MarkAsFailed(err error) bool {
	return je.finish(BatchStatusFailed, err)
}

// MarkAsCancelled は CANCELLED に遷移させます。
func (je *JobExecution) MarkAsCancelled(err error) bool {
	return je.finish(BatchStatusCancelled, err)
}

// finish は RUNNING からの終了遷移を一度だけ行います。既に終了している場合は false を返します。
func (je *JobExecution) finish(status JobStatus, err error) bool {
	je.mu.Lock()
	defer je.mu.Unlock()
	if je.status != BatchStatusRunning {
		return false
	}
	je.status = status
	je.endTime = time.Now()
	if je.failure == nil {
		je.failure = err
	}
	je.currentStepName = ""
	return true
}

// SetCurrentStepName は実行中のステップ名を記録します。
func (je *JobExecution) SetCurrentStepName(name string) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.currentStepName = name
}

// AddStepExecution は StepExecution を追加します。
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.stepExecutions = append(je.stepExecutions, se)
}

// StepExecutions は StepExecution の一覧を返します。
// 各 StepExecution はジョブのゴルーチンが所有するため、読み出しはジョブ終了後に行ってください。
func (je *JobExecution) StepExecutions() []*StepExecution {
	je.mu.RLock()
	defer je.mu.RUnlock()
	out := make([]*StepExecution, len(je.stepExecutions))
	copy(out, je.stepExecutions)
	return out
}

// JobExecutionSnapshot は表示や永続化のための JobExecution の読み取り専用コピーです。
type JobExecutionSnapshot struct {
	ID              string
	JobName         string
	Status          JobStatus
	StartTime       time.Time
	EndTime         time.Time
	Failure         error
	CurrentStepName string
	StepNames       []string
}

// Snapshot は現在の状態のコピーを返します。
func (je *JobExecution) Snapshot() JobExecutionSnapshot {
	je.mu.RLock()
	defer je.mu.RUnlock()
	names := make([]string, 0, len(je.stepExecutions))
	for _, se := range je.stepExecutions {
		names = append(names, se.StepName)
	}
	return JobExecutionSnapshot{
		ID:              je.ID,
		JobName:         je.JobName,
		Status:          je.status,
		StartTime:       je.startTime,
		EndTime:         je.endTime,
		Failure:         je.failure,
		CurrentStepName: je.currentStepName,
		StepNames:       names,
	}
}

// StepExecution はステップの単一の実行を表します。ジョブのゴルーチンからのみ更新されます。
type StepExecution struct {
	ID            string
	StepName      string
	StartTime     time.Time
	EndTime       time.Time
	Status        JobStatus
	Failures      []error
	ReadCount     int
	WriteCount    int
	FilterCount   int
	SkipCount     int
	CommitCount   int
	RollbackCount int
	// PendingTasks は DoStep が起動した ItemTask の Future です。ジョブはこれらを合流点で待ちます。
	PendingTasks []PendingTask
}

// PendingTask は起動済みの ItemTask と、その終了を待つための Waitable の組です。
type PendingTask struct {
	Name     string
	Waitable asynctask.Waitable
}

// NewStepExecution は新しい StepExecution を作成します。
func NewStepExecution(stepName string) *StepExecution {
	return &StepExecution{
		ID:       uuid.New().String(),
		StepName: stepName,
		Status:   BatchStatusNotStarted,
	}
}

// MarkAsStarted は StepExecution を RUNNING にします。
func (se *StepExecution) MarkAsStarted() {
	se.Status = BatchStatusRunning
	se.StartTime = time.Now()
}

// MarkAsCompleted は StepExecution を COMPLETED にします。
func (se *StepExecution) MarkAsCompleted() {
	se.Status = BatchStatusCompleted
	se.EndTime = time.Now()
}

// MarkAsFailed は StepExecution を FAILED にし、エラーを追加します。
func (se *StepExecution) MarkAsFailed(err error) {
	se.Status = BatchStatusFailed
	se.EndTime = time.Now()
	if err != nil {
		se.Failures = append(se.Failures, err)
	}
}

// MarkAsCancelled は StepExecution を CANCELLED にします。
func (se *StepExecution) MarkAsCancelled(err error) {
	se.Status = BatchStatusCancelled
	se.EndTime = time.Now()
	if err != nil {
		se.Failures = append(se.Failures, err)
	}
}

// ProgressListeners は ItemProgressListener の集合です。
// 登録はいつでも安全に行えますが、Notify 実行中の登録が同じ通知で観測される保証はありません。
// 通知は呼び出し元のゴルーチンで登録順に同期的に行われるため、遅いリスナーは呼び出し元を遅らせます。
type ProgressListeners struct {
	mu        sync.Mutex
	listeners []ItemProgressListener
}

// Add はリスナーを登録します。
func (p *ProgressListeners) Add(listener ItemProgressListener) {
	if listener == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, listener)
}

// Len は登録済みリスナー数を返します。
func (p *ProgressListeners) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Notify は登録順にすべてのリスナーへ進捗を通知します。
func (p *ProgressListeners) Notify(label string, current, total int) {
	p.mu.Lock()
	ls := make([]ItemProgressListener, len(p.listeners))
	copy(ls, p.listeners)
	p.mu.Unlock()
	for _, l := range ls {
		l.OnProgress(label, current, total)
	}
}
