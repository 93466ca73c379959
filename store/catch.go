package store

// Catcher turns a fallible record handler into a KeyValueFunc.
//
// A scan callback has no way to report failure to the store driving it, so the
// first error returned by the handler is recorded and every later record is
// skipped. The underlying scan still runs to completion; Finish surfaces the
// recorded error once it has returned.
type Catcher struct {
	handle func(key, value []byte) error
	err    error
}

// Catch wraps handle.
func Catch(handle func(key, value []byte) error) *Catcher {
	return &Catcher{handle: handle}
}

// Callback is the KeyValueFunc to pass to a scan.
func (c *Catcher) Callback(key, value []byte) {
	if c.err != nil {
		return
	}
	c.err = c.handle(key, value)
}

// Err returns the first error raised by the handler, if any.
func (c *Catcher) Err() error {
	return c.err
}

// Finish combines the error of the scan call itself with the caught one. The
// scan error wins.
func (c *Catcher) Finish(scanErr error) error {
	if scanErr != nil {
		return scanErr
	}
	return Wrap("scan callback", c.err)
}
