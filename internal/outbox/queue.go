package outbox

import "context"

// Queue は端末ローカルの永続キュー。List は作成順で返す
type Queue interface {
	Put(ctx context.Context, e Event) error
	Get(ctx context.Context, key string) (Event, error)
	List(ctx context.Context, statuses ...Status) ([]Event, error)
	// Update は key の現在値を fn に渡し、fn が nil を返したら書き戻す
	Update(ctx context.Context, key string, fn func(*Event) error) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func wantStatus(st Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
