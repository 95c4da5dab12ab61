package email

import "sync"

type FakeMessage struct {
	To      string
	Subject string
	Body    string
}

// FakeService records sends so tests can assert on the notification leg.
type FakeService struct {
	mu   sync.Mutex
	sent []FakeMessage
	Err  error
}

func NewFake() *FakeService {
	return &FakeService{}
}

func (svc *FakeService) Send(to, subject, body string) error {
	if svc.Err != nil {
		return svc.Err
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = append(svc.sent, FakeMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (svc *FakeService) Sent() []FakeMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]FakeMessage, len(svc.sent))
	copy(out, svc.sent)
	return out
}
