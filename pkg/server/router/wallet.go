package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/openwalletlab/wallet-core/pkg/wallet"
)

type WalletRouter struct {
	engine *wallet.Engine
	views  *wallet.ViewCache
}

func NewWalletRouter(engine *wallet.Engine, views *wallet.ViewCache) (*WalletRouter, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if views == nil {
		return nil, errors.New("view cache cannot be nil")
	}
	return &WalletRouter{engine: engine, views: views}, nil
}

// GetView returns the latest view snapshot rendered by the engine.
func (wr WalletRouter) GetView(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, wr.views.Latest())
}

type SubmitURIRequest struct {
	// URI as scanned or pasted, scheme included.
	URI string `json:"uri"`
}

// SubmitOffer hands a scanned credential offer URI to the engine. The flow
// runs asynchronously; progress shows up on the view endpoint.
func (wr WalletRouter) SubmitOffer(c *gin.Context) {
	var request SubmitURIRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.URI == "" {
		respondError(c, http.StatusBadRequest, "request must carry a uri")
		return
	}
	wr.engine.ScanIssuanceOffer(request.URI)
	c.Status(http.StatusAccepted)
}

// SubmitRequest hands a scanned presentation request URI to the engine.
func (wr WalletRouter) SubmitRequest(c *gin.Context) {
	var request SubmitURIRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.URI == "" {
		respondError(c, http.StatusBadRequest, "request must carry a uri")
		return
	}
	wr.engine.ScanPresentationRequest(request.URI)
	c.Status(http.StatusAccepted)
}

type SubmitTxCodeRequest struct {
	Code string `json:"code"`
}

// SubmitTxCode delivers the holder-entered transaction code. Whether a flow
// is actually waiting for one is the engine's call; a mistimed code surfaces
// as a notice on the view.
func (wr WalletRouter) SubmitTxCode(c *gin.Context) {
	var request SubmitTxCodeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid transaction code request")
		return
	}
	wr.engine.SupplyTxCode(request.Code)
	c.Status(http.StatusAccepted)
}

type SubmitSelectionRequest struct {
	// Selection maps input descriptor IDs to the chosen credential ID.
	Selection map[string]string `json:"selection"`
}

func (wr WalletRouter) SubmitSelection(c *gin.Context) {
	var request SubmitSelectionRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Selection) == 0 {
		respondError(c, http.StatusBadRequest, "request must carry a selection")
		return
	}
	wr.engine.SelectCredentials(request.Selection)
	c.Status(http.StatusAccepted)
}

// Cancel abandons the flow in progress.
func (wr WalletRouter) Cancel(c *gin.Context) {
	wr.engine.Cancel()
	c.Status(http.StatusAccepted)
}

// Ready acknowledges a terminal view.
func (wr WalletRouter) Ready(c *gin.Context) {
	wr.engine.Ready()
	c.Status(http.StatusAccepted)
}
