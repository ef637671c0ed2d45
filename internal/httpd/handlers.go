package httpd

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	bunstore "github.com/kartikbazzad/bunstore"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleBatch runs a positional batch. The response results array has
// one entry per submitted op, in order.
func (s *Server) handleBatch(c *gin.Context) {
	var envelopes []opEnvelope
	if err := c.ShouldBindJSON(&envelopes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ops, err := decodeOps(envelopes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := s.store.Batch(c.Request.Context(), ops)
	if err != nil {
		s.log.Error("batch failed", "error", err, "ops", len(ops))
		recordOps(ops, "error")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	recordOps(ops, "ok")
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleGetItem(c *gin.Context) {
	ns, key, ok := itemParams(c)
	if !ok {
		return
	}
	item, err := bunstore.Get(c.Request.Context(), s.store, ns, key)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

type putRequest struct {
	Namespace []string       `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
}

func (s *Server) handlePutItem(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := bunstore.Put(c.Request.Context(), s.store, req.Namespace, req.Key, req.Value); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDeleteItem(c *gin.Context) {
	ns, key, ok := itemParams(c)
	if !ok {
		return
	}
	if err := bunstore.Delete(c.Request.Context(), s.store, ns, key); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type searchRequest struct {
	NamespacePrefix []string       `json:"namespace_prefix"`
	Filter          map[string]any `json:"filter"`
	Limit           int            `json:"limit"`
	Offset          int            `json:"offset"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	opts := make([]bunstore.QueryOption, 0, 3)
	if req.Filter != nil {
		opts = append(opts, bunstore.WithFilter(req.Filter))
	}
	if req.Limit > 0 {
		opts = append(opts, bunstore.WithLimit(req.Limit))
	}
	if req.Offset > 0 {
		opts = append(opts, bunstore.WithOffset(req.Offset))
	}

	items, err := bunstore.Search(c.Request.Context(), s.store, req.NamespacePrefix, opts...)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type listRequest struct {
	MatchConditions []matchCondition `json:"match_conditions"`
	MaxDepth        int              `json:"max_depth"`
	Limit           int              `json:"limit"`
	Offset          int              `json:"offset"`
}

func (s *Server) handleListNamespaces(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	opts := make([]bunstore.QueryOption, 0, len(req.MatchConditions)+3)
	for _, cond := range req.MatchConditions {
		opts = append(opts, bunstore.WithMatch(bunstore.MatchType(cond.MatchType), cond.Path...))
	}
	if req.MaxDepth > 0 {
		opts = append(opts, bunstore.WithMaxDepth(req.MaxDepth))
	}
	if req.Limit > 0 {
		opts = append(opts, bunstore.WithLimit(req.Limit))
	}
	if req.Offset > 0 {
		opts = append(opts, bunstore.WithOffset(req.Offset))
	}

	namespaces, err := bunstore.ListNamespaces(c.Request.Context(), s.store, opts...)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespaces": namespaces})
}

// itemParams reads the namespace and key query parameters shared by
// the single-item routes. The namespace is a dotted path.
func itemParams(c *gin.Context) (bunstore.Namespace, string, bool) {
	nsParam := c.Query("namespace")
	key := c.Query("key")
	if nsParam == "" || key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "namespace and key are required"})
		return nil, "", false
	}
	return strings.Split(nsParam, "."), key, true
}
