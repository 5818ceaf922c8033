package jobqueue

// Task is a "helper" struct to pull together information from beanstalk and the kv
type Task struct {
	ID     uint64 // id from beanstalkd
	JobID  string // body from beanstalkd
	Job    *Job
	client *Client
}

// Delete removes a task from beanstalk
func (t *Task) Delete() error {
	t.client.mu.Lock()
	defer t.client.mu.Unlock()
	return t.client.conn.Delete(t.ID)
}

// Release puts a task back on its tube to be retried later
func (t *Task) Release() error {
	t.client.mu.Lock()
	defer t.client.mu.Unlock()
	return t.client.conn.Release(t.ID, priority, releaseDelay)
}

// Bury sets a task aside so it is not retried
func (t *Task) Bury() error {
	t.client.mu.Lock()
	defer t.client.mu.Unlock()
	return t.client.conn.Bury(t.ID, priority)
}

// RefreshJob reloads a task's job information
func (t *Task) RefreshJob() error {
	job, err := t.client.Job(t.JobID)
	if err != nil {
		return err
	}
	t.Job = job
	return nil
}
