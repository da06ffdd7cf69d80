package control

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iamOgunyinka/binance-monitor/internal/scheduler"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

type createTaskRequest struct {
	RequestID  string `json:"request_id"`
	Username   string `json:"username"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	PeriodSecs int64  `json:"period_secs"`
	ColumnID   string `json:"col_id"`
	TaskType   int    `json:"task_type"`
	OrderPrice string `json:"order_price"`
	Money      string `json:"money"`
	Quantity   string `json:"quantity"`
}

// newRequestID produces the glossary's "operator-supplied or
// system-generated 10-char alphanumeric identifier" when the operator
// didn't supply one.
func newRequestID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:10]
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// createTask persists a new scheduled task as `initiated` and hands it to
// the scheduler's input queue; C10 flips it to `running` and starts its
// ticker.
func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Username == "" || req.Symbol == "" || req.PeriodSecs <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, symbol and period_secs are required"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = newRequestID()
	}

	orderPrice, money, quantity := parseDecimal(req.OrderPrice), parseDecimal(req.Money), parseDecimal(req.Quantity)

	row := db.ScheduledTaskRow{
		RequestID: req.RequestID, ForUsername: req.Username, TokenName: req.Symbol, Side: req.Side,
		MonitorTimeSecs: req.PeriodSecs, ColID: req.ColumnID, Status: int(scheduler.StatusInitiated),
		TaskType: req.TaskType, OrderPrice: orderPrice, Money: money, Quantity: quantity,
	}
	if err := s.DB.CreateScheduledTask(c.Request.Context(), row); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task := scheduler.ScheduledTask{
		RequestID: req.RequestID, Username: req.Username, Symbol: req.Symbol,
		PeriodSecs: req.PeriodSecs, ColumnID: req.ColumnID, Status: scheduler.StatusInitiated,
		TaskType: scheduler.TaskType(req.TaskType), OrderPrice: orderPrice, Money: money, Quantity: quantity,
	}
	task.Direction = directionFromSideRequest(req.Side)
	s.Tasks.Append(any(task))

	c.JSON(http.StatusCreated, gin.H{"request_id": req.RequestID})
}

func directionFromSideRequest(side string) scheduler.Direction {
	switch strings.ToLower(side) {
	case "buy":
		return scheduler.DirectionBuy
	case "sell":
		return scheduler.DirectionSell
	default:
		return scheduler.DirectionNone
	}
}

type updateTaskRequest struct {
	Status string `json:"status"` // "stopped" | "restarted" | "remove"
}

// updateTask pushes a status-transition event for an existing task into
// the scheduler's queue; C10 performs the actual stop/restart/remove.
func (s *Server) updateTask(c *gin.Context) {
	requestID := c.Param("request_id")
	var req updateTaskRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	var status scheduler.Status
	switch strings.ToLower(req.Status) {
	case "stopped":
		status = scheduler.StatusStopped
	case "restarted":
		status = scheduler.StatusRestarted
	case "remove":
		status = scheduler.StatusRemove
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of stopped, restarted, remove"})
		return
	}

	s.Tasks.Append(any(scheduler.ScheduledTask{RequestID: requestID, Status: status}))
	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "status": req.Status})
}

// getTaskResults returns every sampled record for a task. username is
// required as a query param since records live in a per-username table.
func (s *Server) getTaskResults(c *gin.Context) {
	requestID := c.Param("request_id")
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username query parameter is required"})
		return
	}

	prefix := db.TablePrefix(username)
	rows, err := s.DB.ListRecords(c.Request.Context(), prefix, requestID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "results": rows})
}
