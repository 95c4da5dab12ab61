package email

type IService interface {
	Send(to, subject, body string) error
}
