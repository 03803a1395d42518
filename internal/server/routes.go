package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/bsonctl/internal/observability"
	"github.com/danmuck/bsonctl/internal/protocol"
	"github.com/danmuck/bsonctl/internal/protocol/frame"
	"github.com/danmuck/bsonctl/internal/protocol/schema"
	"github.com/danmuck/bsonctl/internal/protocol/session"
	"github.com/danmuck/bsonctl/internal/protocol/value"
)

const (
	contentTypeBSON  = "application/bson"
	contentTypeFrame = "application/octet-stream"
)

type fieldInfo struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Options map[string]string `json:"options,omitempty"`
}

type messageInfo struct {
	Name   string      `json:"name"`
	ID     uint32      `json:"id"`
	Fields []fieldInfo `json:"fields"`
}

type decodeResponse struct {
	Message string         `json:"message"`
	ID      uint32         `json:"id"`
	Seq     int64          `json:"seq"`
	Record  map[string]any `json:"record"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": "bsonctl",
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/schema", func(c *gin.Context) {
		msgs := s.channel.Encoder().Schema().Messages()
		out := make([]messageInfo, 0, len(msgs))
		for _, msg := range msgs {
			out = append(out, describe(msg))
		}
		c.JSON(http.StatusOK, gin.H{"messages": out})
	})

	s.router.GET("/schema/:message", func(c *gin.Context) {
		msg, ok := s.channel.Encoder().Schema().Message(c.Param("message"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown message", "reason": "unknown_message"})
			return
		}
		c.JSON(http.StatusOK, describe(msg))
	})

	s.router.POST("/encode/:message", s.handleEncode)
	s.router.POST("/decode", s.handleDecode)
}

func describe(msg *schema.Message) messageInfo {
	info := messageInfo{Name: msg.Name, ID: msg.ID, Fields: make([]fieldInfo, 0, len(msg.Fields))}
	for _, f := range msg.Fields {
		fi := fieldInfo{Name: f.Name, Type: f.Type()}
		if opts := byteOptions(f); opts != nil {
			fi.Options = opts
		}
		info.Fields = append(info.Fields, fi)
	}
	return info
}

func byteOptions(f *schema.Field) map[string]string {
	for f.Elem != nil {
		f = f.Elem
	}
	if !f.Options.ByteString {
		return nil
	}
	return map[string]string{"type": "string", "trim": f.Options.Trim.String()}
}

// handleEncode reads a JSON record and answers with the BSON document, or a
// full frame when ?framed=true.
func (s *Server) handleEncode(c *gin.Context) {
	var seq int64
	if raw := c.Query("seq"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seq", "reason": "bad_request"})
			return
		}
		seq = v
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "bad_request"})
		return
	}
	rec, err := value.RecordFromGo(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "bad_request"})
		return
	}

	f, err := s.channel.EncodeFrame(session.Message{Name: c.Param("message"), Seq: seq, Record: rec})
	if err != nil {
		s.fail(c, err)
		return
	}
	if c.Query("framed") != "true" {
		c.Data(http.StatusOK, contentTypeBSON, f.Payload)
		return
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentTypeFrame)
	if err := frame.WriteFrame(c.Writer, f, frame.DefaultLimits()); err != nil {
		_ = c.Error(err)
	}
}

// handleDecode reads a BSON document (or a frame when ?framed=true) and
// answers with its JSON form.
func (s *Server) handleDecode(c *gin.Context) {
	var (
		msg session.Message
		err error
	)
	if c.Query("framed") == "true" {
		var f frame.Frame
		f, err = frame.ReadFrame(c.Request.Body, frame.DefaultLimits())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "bad_frame"})
			return
		}
		msg, err = s.channel.DecodeFrame(f)
	} else {
		var doc []byte
		doc, err = io.ReadAll(io.LimitReader(c.Request.Body, int64(frame.DefaultLimits().MaxPayloadBytes)+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "bad_request"})
			return
		}
		msg, err = s.channel.Decode(doc)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decodeResponse{
		Message: msg.Name,
		ID:      msg.MsgID,
		Seq:     msg.Seq,
		Record:  msg.Record.Interface(),
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	reason := protocol.Reason(err)
	c.Set(observability.ReasonKey, reason)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, protocol.ErrUnknownMessage):
		status = http.StatusNotFound
	case protocol.IsMessageError(err), errors.Is(err, session.ErrEnvelopeMismatch):
		status = http.StatusBadRequest
	}
	resp := gin.H{"error": err.Error(), "reason": reason}
	var pe *protocol.Error
	if errors.As(err, &pe) && pe.Path != "" {
		resp["path"] = pe.Path
	}
	c.JSON(status, resp)
}
