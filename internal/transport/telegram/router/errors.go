package router

import "errors"

// UserError is a failure the user caused and can fix. Msg is sent to the
// chat as is; Err, if any, is only logged.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *UserError) Unwrap() error { return e.Err }

// UserMsg builds a UserError without a cause. msg is sent verbatim.
func UserMsg(msg string) error { return &UserError{Msg: msg} }

func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// GenericFailure is sent for any error that is not a UserError.
const GenericFailure = "Не получилось выполнить команду, попробуйте позже."
