package client

import (
	"context"
	"fmt"

	"github.com/nczempin/httpc-conn/engine"
	"github.com/nczempin/httpc-conn/errors"
)

// isFollowableRedirect reports 3xx statuses other than 304 Not Modified
func isFollowableRedirect(status int) bool {
	return status >= 300 && status < 400 && status != 304
}

// fetchHeaders reads the response head into a fresh header store. When
// redirects are followed it re-opens the session against the Location and
// starts over, at most MaxRedirects times.
func (c *Connection) fetchHeaders(ctx context.Context) error {
	redirects := 0

	for {
		store := newHeaderStore()
		c.headers = store
		c.contentLenHeader = nil

		err := c.events.scoped(store.collector(), func() error {
			_, err := c.session.FetchHeaders()
			return err
		})
		if err != nil {
			return err
		}

		c.log.WithField("headers", store.len()).Trace("fetched headers")

		if !c.followRedirects {
			return nil
		}

		status := c.session.StatusCode()
		if !isFollowableRedirect(status) {
			return nil
		}

		if redirects >= c.config.maxRedirects() {
			return errors.NewRedirectError(fmt.Sprintf("stopped after %d redirects", redirects))
		}
		redirects++

		c.log.Infof("got response %d, about to follow redirect", status)

		if _, err := c.session.FlushResponse(); err != nil {
			return err
		}
		if err := c.session.SetMethod(engine.MethodGet); err != nil {
			return err
		}
		if err := c.session.SetRedirection(); err != nil {
			return err
		}
		if err := c.open(ctx); err != nil {
			return err
		}
	}
}
