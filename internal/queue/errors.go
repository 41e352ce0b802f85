package queue

import "errors"

// permanentError は再試行しても成功しない失敗を表す。
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent はerrを再試行不要の失敗としてラップする。
// ハンドラーがこれを返した場合、ジョブは再試行されずに失敗リストへ移される。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent はerrが再試行不要の失敗かを返す。
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
