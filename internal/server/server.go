package server

import (
	"context"
	goerrors "errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"liquefier/internal/command"
	"liquefier/internal/config"
	"liquefier/internal/status"
	"liquefier/pkg/log"
)

const httpXRequestId = log.HttpXRequestId

// Handler runs commands. Implemented by command.Dispatcher.
type Handler interface {
	Handle(ctx context.Context, req *command.Request) *command.Response
	Commands() []*command.Command
}

// StatusSource reports finished runs. Implemented by status.Registry.
type StatusSource interface {
	Last() (*status.Run, error)
	History(limit int) ([]*status.Run, error)
}

type Server struct {
	conf       *config.Config
	handler    Handler
	runs       StatusSource
	httpServer *http.Server
	logger     *logrus.Entry
}

// NewServer builds the HTTP transport of the command endpoint. runs may be nil.
func NewServer(ctx context.Context, conf *config.Config, handler Handler, runs StatusSource) (*Server, error) {
	s := &Server{
		conf:    conf,
		handler: handler,
		runs:    runs,
		logger:  log.GetLogger(ctx).WithField("component", "server"),
	}

	return s, nil
}

func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(httpXRequestId)
		if requestId == "" {
			requestId = strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		c.Set(log.CtxRequestId, requestId)
		c.Header(httpXRequestId, requestId)
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		c.Next()
		latency := time.Since(t)
		status := c.Writer.Status()

		var cmdStatus string
		if val, exists := c.Get(commandStatusKey); exists {
			cmdStatus = val.(string)
		}

		log.GetLogger(c).Info("ip: ", c.ClientIP(), " method: ", c.Request.Method, " path: ",
			c.Request.URL.Path, " status: ", status, " latency: ", latency, " command_status: ", cmdStatus)
	}
}

func (s *Server) Start() {
	gin.SetMode(gin.ReleaseMode)
	router := s.SetUpRouter()
	pprof.Register(router)
	s.httpServer = &http.Server{
		Addr:    s.conf.Addr,
		Handler: router,
	}

	var err error
	if s.conf.SSLCert != "" && s.conf.SSLKey != "" {
		s.logger.Infof("start https server on %s", s.conf.Addr)
		err = s.httpServer.ListenAndServeTLS(s.conf.SSLCert, s.conf.SSLKey)
	} else {
		s.logger.Infof("start http server on %s", s.conf.Addr)
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !goerrors.Is(err, http.ErrServerClosed) {
		logrus.Fatal(err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(c *gin.Context, code int, err error) {
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
	})
}

var commandName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("cmdname", func(fl validator.FieldLevel) bool {
			return commandName.MatchString(fl.Field().String())
		})
	}
}
