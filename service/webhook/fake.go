package webhook

import "sync"

// FakeService records posted payloads so tests can assert on the
// notification leg.
type FakeService struct {
	mu    sync.Mutex
	posts []map[string]interface{}
	Err   error
}

func NewFake() *FakeService {
	return &FakeService{}
}

func (svc *FakeService) Post(payload map[string]interface{}) error {
	if svc.Err != nil {
		return svc.Err
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.posts = append(svc.posts, payload)
	return nil
}

func (svc *FakeService) Posts() []map[string]interface{} {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]map[string]interface{}, len(svc.posts))
	copy(out, svc.posts)
	return out
}
