package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// CallbackPath is where the authorization server redirects the browser.
const CallbackPath = "/callback"

var ginModeOnce sync.Once

// CallbackResult is the single outcome a listener publishes: either an
// authorization code or an "error: description" message.
type CallbackResult struct {
	Code  string
	Error string
}

// CallbackListener is a loopback HTTP server receiving exactly one OAuth
// callback.
type CallbackListener struct {
	server   *http.Server
	listener net.Listener
	port     int
	results  chan CallbackResult
	// served is closed once the serve goroutine has returned.
	served chan struct{}

	publishOnce sync.Once
	stopOnce    sync.Once
	stopErr     error
}

// StartCallbackListener binds localhost:port and starts serving in the
// background. Port 0 picks a free port.
func StartCallbackListener(port int) (*CallbackListener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: port %d: %v", ErrPortInUse, port, err)
		}
		return nil, err
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	l := &CallbackListener{
		listener: ln,
		port:     ln.Addr().(*net.TCPAddr).Port,
		results:  make(chan CallbackResult, 1),
		served:   make(chan struct{}),
	}

	engine := gin.New()
	engine.SetHTMLTemplate(callbackTemplates())
	engine.GET(CallbackPath, l.handleCallback)
	engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "not found")
	})

	l.server = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		defer close(l.served)
		_ = l.server.Serve(ln)
	}()
	return l, nil
}

// Port is the bound port.
func (l *CallbackListener) Port() int {
	return l.port
}

// RedirectURL is the redirect_uri matching this listener.
func (l *CallbackListener) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d%s", l.port, CallbackPath)
}

// Result yields the first callback outcome. It never yields twice.
func (l *CallbackListener) Result() <-chan CallbackResult {
	return l.results
}

// Stop shuts the server down and releases the port. The port is free when
// Stop returns, even if the serve goroutine had not started yet. Safe to call
// repeatedly.
func (l *CallbackListener) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() {
		if err := l.server.Shutdown(ctx); err != nil {
			l.stopErr = l.server.Close()
		}
		if err := l.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) && l.stopErr == nil {
			l.stopErr = err
		}
		select {
		case <-l.served:
		case <-ctx.Done():
			if l.stopErr == nil {
				l.stopErr = ctx.Err()
			}
		}
	})
	return l.stopErr
}

// publish reports whether result was the one published.
func (l *CallbackListener) publish(result CallbackResult) bool {
	published := false
	l.publishOnce.Do(func() {
		l.results <- result
		published = true
	})
	return published
}

func (l *CallbackListener) completed(c *gin.Context) {
	c.HTML(http.StatusOK, "completed", gin.H{"Title": "Login already completed"})
}

func (l *CallbackListener) handleCallback(c *gin.Context) {
	if code := c.Query("code"); code != "" {
		if !l.publish(CallbackResult{Code: code}) {
			l.completed(c)
			return
		}
		c.HTML(http.StatusOK, "success", gin.H{"Title": "Authentication successful"})
		return
	}
	if errCode := c.Query("error"); errCode != "" {
		description := c.Query("error_description")
		if description == "" {
			description = "Unknown error"
		}
		message := errCode + ": " + description
		if !l.publish(CallbackResult{Error: message}) {
			l.completed(c)
			return
		}
		c.HTML(http.StatusBadRequest, "failure", gin.H{"Title": "Authentication failed", "Message": message})
		return
	}
	c.HTML(http.StatusBadRequest, "failure", gin.H{"Title": "Invalid callback", "Message": "missing code or error parameter"})
}
