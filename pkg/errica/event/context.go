package event

import "context"

type taskKey struct{}

// ContextWithTask returns a copy of ctx carrying task. Events captured with
// that ctx and no explicit task are attributed to it.
func ContextWithTask(ctx context.Context, task TaskInfo) context.Context {
	return context.WithValue(ctx, taskKey{}, task)
}

// TaskFromContext returns the task stored by ContextWithTask.
func TaskFromContext(ctx context.Context) (TaskInfo, bool) {
	if ctx == nil {
		return TaskInfo{}, false
	}
	t, ok := ctx.Value(taskKey{}).(TaskInfo)
	return t, ok
}
