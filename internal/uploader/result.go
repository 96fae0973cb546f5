package uploader

// Result is the outcome of one upload: either a URL or an error, never both.
// Build it with Success or Failure.
type Result struct {
	url string
	err error
}

// Success returns a successful result pointing at url
func Success(url string) Result {
	return Result{url: url}
}

// Failure returns a failed result. A nil err becomes ErrUnknownFailure.
func Failure(err error) Result {
	if err == nil {
		err = ErrUnknownFailure
	}
	return Result{err: err}
}

// OK reports whether the upload succeeded
func (r Result) OK() bool {
	return r.err == nil
}

// URL returns the uploaded object or prefix URL. Empty on failure.
func (r Result) URL() string {
	return r.url
}

// Err returns the failure, or nil on success
func (r Result) Err() error {
	return r.err
}

// Unpack returns the result as a conventional (url, error) pair
func (r Result) Unpack() (string, error) {
	return r.url, r.err
}

// Completion receives the single outcome of an upload
type Completion func(Result)
