// Package itop talks to the iTop REST/JSON webservice.
package itop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/config"
	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

const (
	ticketClass  = "UserRequest"
	outputFields = "id, friendlyname"
)

// APIError is returned for a non-200 status or a non-zero iTop code.
type APIError struct {
	Operation string
	Status    int
	Code      int
	Message   string
}

func (e *APIError) Error() string {
	if e.Status != fiber.StatusOK {
		return fmt.Sprintf("itop %s: http %d: %s", e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("itop %s: code %d: %s", e.Operation, e.Code, e.Message)
}

// Client submits create and update operations.
type Client struct {
	endpoint     string
	auth         string
	organization string
	timeout      time.Duration
	logger       *zap.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.ITopConfig, logger *zap.Logger) *Client {
	return &Client{
		endpoint:     cfg.Endpoint,
		auth:         cfg.BasicAuthentication,
		organization: cfg.Organization,
		timeout:      cfg.Timeout(),
		logger:       logger,
	}
}

type callerField struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
}

type createFields struct {
	OrgID        string      `json:"org_id"`
	CallerID     callerField `json:"caller_id"`
	Description  string      `json:"description"`
	Title        string      `json:"title"`
	SlackAddress string      `json:"slack_address"`
}

type updateFields struct {
	PublicLog string `json:"public_log"`
}

type request struct {
	Operation    string         `json:"operation"`
	Comment      string         `json:"comment"`
	Class        string         `json:"class"`
	Key          map[string]any `json:"key,omitempty"`
	OutputFields string         `json:"output_fields"`
	Fields       any            `json:"fields"`
}

type response struct {
	Code    int                       `json:"code"`
	Message string                    `json:"message"`
	Objects map[string]responseObject `json:"objects"`
}

type responseObject struct {
	Code   int    `json:"code"`
	Key    string `json:"key"`
	Fields struct {
		ID           string `json:"id"`
		FriendlyName string `json:"friendlyname"`
	} `json:"fields"`
}

// CreateTicket opens a UserRequest and returns its friendly name (R-XXXXXX).
func (c *Client) CreateTicket(ctx context.Context, req domain.TicketRequest) (string, error) {
	org := req.Organization
	if org == "" {
		org = c.organization
	}
	resp, err := c.post(ctx, request{
		Operation:    "core/create",
		Comment:      "Ticket create by Slack Bot",
		Class:        ticketClass,
		OutputFields: outputFields,
		Fields: createFields{
			OrgID:        fmt.Sprintf("SELECT Organization WHERE name = %q", org),
			CallerID:     callerField{Name: req.Caller.LastName, FirstName: req.Caller.FirstName},
			Description:  req.Description,
			Title:        req.Title,
			SlackAddress: req.SlackAddress,
		},
	})
	if err != nil {
		return "", err
	}
	for _, obj := range resp.Objects {
		if obj.Fields.FriendlyName != "" {
			return obj.Fields.FriendlyName, nil
		}
	}
	return "", &APIError{Operation: "core/create", Status: fiber.StatusOK, Message: "response has no friendlyname"}
}

// AppendPublicLog adds text to the ticket's public log.
func (c *Client) AppendPublicLog(ctx context.Context, ref, text string) error {
	_, err := c.post(ctx, request{
		Operation:    "core/update",
		Comment:      "Ticket update by Slack Bot",
		Class:        ticketClass,
		Key:          map[string]any{"ref": ref},
		OutputFields: outputFields,
		Fields:       updateFields{PublicLog: text},
	})
	return err
}

func (c *Client) post(ctx context.Context, req request) (*response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Operation, err)
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("json_data", string(payload))

	agent := fiber.Post(c.endpoint)
	agent.Set(fiber.HeaderAuthorization, "Basic "+c.auth)
	agent.Form(args)
	if timeout := c.callTimeout(ctx); timeout > 0 {
		agent.Timeout(timeout)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("itop %s: %w", req.Operation, errors.Join(errs...))
	}
	if status != fiber.StatusOK {
		c.logger.Error("itop call failed",
			zap.String("operation", req.Operation), zap.Int("status", status), zap.ByteString("body", body))
		return nil, &APIError{Operation: req.Operation, Status: status, Message: string(body)}
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode itop %s response: %w", req.Operation, err)
	}
	if resp.Code != 0 {
		return nil, &APIError{Operation: req.Operation, Status: status, Code: resp.Code, Message: resp.Message}
	}
	return &resp, nil
}

func (c *Client) callTimeout(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout == 0 || left < timeout {
			timeout = left
		}
	}
	return timeout
}
