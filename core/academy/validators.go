package academy

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trackmyacademy/dashboard/core"
)

var (
	subscriptionWindowTag  = "subscription_window"
	subscriptionWindowText = "subscription must expire after it starts"

	sessionWindowTag  = "session_window"
	sessionWindowText = "session must end after it starts"

	positiveTag  = "positive"
	positiveText = "{0} must be greater than 0"

	uniqueText = "{0} must not contain duplicates"
)

// InitValidators registers the academy struct validations and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(academyStructValidation, NewAcademy{}, UpdateAcademy{})
	validate.RegisterStructValidation(sessionStructValidation, NewSession{}, UpdateSession{})

	core.RegisterCustomTranslation(validate, translator, subscriptionWindowTag, subscriptionWindowText)
	core.RegisterCustomTranslation(validate, translator, sessionWindowTag, sessionWindowText)
	core.RegisterCustomTranslation(validate, translator, positiveTag, positiveText)
	core.RegisterCustomTranslation(validate, translator, "unique", uniqueText, true)
}

func (na *NewAcademy) Validate(validate *validator.Validate) error {
	na.clean()
	return validate.Struct(na)
}

func (ua *UpdateAcademy) Validate(validate *validator.Validate) error {
	ua.clean()
	return validate.Struct(ua)
}

func (nc *NewCoach) Validate(validate *validator.Validate) error {
	nc.clean()
	return validate.Struct(nc)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.clean()
	return validate.Struct(ns)
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.clean()
	return validate.Struct(ns)
}

func (us *UpdateSession) Validate(validate *validator.Validate) error {
	us.clean()
	return validate.Struct(us)
}

func (na *NewAttendance) Validate(validate *validator.Validate) error {
	na.clean()
	return validate.Struct(na)
}

func (np *NewPerformance) Validate(validate *validator.Validate) error {
	np.clean()
	return validate.Struct(np)
}

// academyStructValidation checks the subscription dates of NewAcademy and UpdateAcademy.
// Tags are not applied to struct typed fields, hence the struct level checks.
func academyStructValidation(sl validator.StructLevel) {
	var start, expiry Date
	switch a := sl.Current().Interface().(type) {
	case NewAcademy:
		start, expiry = a.SubscriptionStartDate, a.SubscriptionExpiryDate
		if !start.Valid {
			sl.ReportError(start, "subscription_start_date", "SubscriptionStartDate", "required", "")
		}
		if !expiry.Valid {
			sl.ReportError(expiry, "subscription_expiry_date", "SubscriptionExpiryDate", "required", "")
		}
	case UpdateAcademy:
		start, expiry = a.SubscriptionStartDate.orZero(), a.SubscriptionExpiryDate.orZero()
	}
	if start.Valid && expiry.Valid && !expiry.Time.Time.After(start.Time.Time) {
		sl.ReportError(expiry, "subscription_expiry_date", "SubscriptionExpiryDate", subscriptionWindowTag, "")
	}
}

// sessionStructValidation checks that a session ends after it starts and that max_participants, when set, is positive.
func sessionStructValidation(sl validator.StructLevel) {
	var start, end string
	var maxParticipants int
	var hasMax bool
	switch s := sl.Current().Interface().(type) {
	case NewSession:
		start, end = s.StartTime, s.EndTime
		maxParticipants, hasMax = s.MaxParticipants.Int, s.MaxParticipants.Valid
	case UpdateSession:
		start, end = s.StartTime, s.EndTime
		if s.MaxParticipants != nil {
			maxParticipants, hasMax = s.MaxParticipants.Int, s.MaxParticipants.Valid
		}
	}
	// HH:MM strings compare chronologically; malformed values are reported by the datetime tag.
	if len(start) == 5 && len(end) == 5 && end <= start {
		sl.ReportError(end, "end_time", "EndTime", sessionWindowTag, "")
	}
	if hasMax && maxParticipants <= 0 {
		sl.ReportError(maxParticipants, "max_participants", "MaxParticipants", positiveTag, "")
	}
}
