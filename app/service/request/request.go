// Package request contains request types for training runs and run history
package request

import (
	"time"

	"github.com/umputun/lorawiz/app/web/enums"
)

// Training contains parameters of a single training run
type Training struct {
	ArchivePath  string // uploaded zip archive
	DestDir      string // parent directory for extracted dataset
	DeleteAfter  bool   // remove extracted dataset after the run
	ModelName    string
	LearningRate string
	BatchSize    string
	Rank         string
}

// RecordRun contains parameters for recording run in history
type RecordRun struct {
	ID           string
	Archive      string // original file name of uploaded archive
	DestDir      string
	DatasetPath  string
	ModelName    string
	LearningRate string
	BatchSize    string
	Rank         string
	DeleteAfter  bool
	Status       enums.RunStatus
	Summary      string
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}
