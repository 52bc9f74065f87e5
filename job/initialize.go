package job

import "context"

// InitializeJob drops and recreates the whole schema. It refuses to run
// unless the caller confirmed with Yes, since everything stored is lost.
type InitializeJob struct {
	*run
	config Config
}

func NewInitializeJob(config Config) *InitializeJob {
	return &InitializeJob{run: newRun("initialize", config.Bus), config: config}
}

func (j *InitializeJob) Kind() string {
	return "initialize"
}

func (j *InitializeJob) Run(ctx context.Context) (*Summary, error) {
	if !j.config.Yes {
		return j.run.fail(&ConfigError{Reason: "initialize erases every table; pass the confirmation flag to proceed"})
	}
	j.run.setState(StatePersisting)
	if err := j.config.Store.InitializeSchema(); err != nil {
		return j.run.fail(err)
	}
	return j.run.done()
}
