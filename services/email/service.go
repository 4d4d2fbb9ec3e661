package emailsvc

import (
	"github.com/trackmyacademy/dashboard/core"
)

// NewService returns the EmailService of the configured provider.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Email.Provider {
	case "sendgrid":
		return NewSendgridService(conf, logger)
	case "resend":
		return NewResendService(conf, logger)
	default:
		if conf.TestMode {
			return NewConsoleServiceMock(conf, logger)
		}
		return NewConsoleService(conf, logger)
	}
}
