package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/plantcare/internal/model"
	"github.com/hitoshi/plantcare/internal/plant"
)

// 植物操作メトリクスのラベル値
const (
	plantOpCreate = "create"
	plantOpUpdate = "update"
	plantOpDelete = "delete"
)

// PlantServiceInterface は植物ハンドラーが必要とするサービスインターフェース。
type PlantServiceInterface interface {
	List(ctx context.Context, caller model.Caller) ([]plant.View, error)
	Create(ctx context.Context, caller model.Caller, input plant.Input) (*plant.View, error)
	Update(ctx context.Context, caller model.Caller, plantID string, input plant.Input) (*plant.View, error)
	Delete(ctx context.Context, caller model.Caller, plantID string) error
}

// PlantOpRecorder は植物操作の記録先。
type PlantOpRecorder interface {
	RecordPlantOperation(op string)
}

// PlantHandler は植物管理のHTTPハンドラー。
type PlantHandler struct {
	service  PlantServiceInterface
	recorder PlantOpRecorder
}

// NewPlantHandler はPlantHandlerを生成する。recorderはnilでもよい。
func NewPlantHandler(service PlantServiceInterface, recorder PlantOpRecorder) *PlantHandler {
	return &PlantHandler{
		service:  service,
		recorder: recorder,
	}
}

// flexInt は数値と数値文字列のどちらも受け付ける整数。
// 解釈できない値は0として扱い、後段のバリデーションで弾く。
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// plantRequest は植物の作成・更新リクエストのボディ。
type plantRequest struct {
	Name         string  `json:"name"`
	Species      string  `json:"species"`
	LastWatered  string  `json:"lastWatered"`
	IntervalDays flexInt `json:"intervalDays"`
	Sunlight     string  `json:"sunlight"`
	Indoors      *bool   `json:"indoors"`
	Notes        string  `json:"notes"`
}

func (req plantRequest) toInput() plant.Input {
	return plant.Input{
		Name:         req.Name,
		Species:      req.Species,
		LastWatered:  req.LastWatered,
		IntervalDays: int(req.IntervalDays),
		Sunlight:     req.Sunlight,
		Indoors:      req.Indoors,
		Notes:        req.Notes,
	}
}

// statusResponse は水やり状況のAPIレスポンス。
type statusResponse struct {
	Code         string `json:"code"`
	Label        string `json:"label"`
	Severity     string `json:"severity"`
	DaysUntilDue int    `json:"daysUntilDue"`
}

// itemResponse は植物のAPIレスポンス。
type itemResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Species       string         `json:"species"`
	LastWatered   string         `json:"lastWatered"`
	IntervalDays  int            `json:"intervalDays"`
	Sunlight      string         `json:"sunlight"`
	Indoors       bool           `json:"indoors"`
	Notes         string         `json:"notes"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	NextWaterDate string         `json:"nextWaterDate"`
	Status        statusResponse `json:"status"`
}

type itemListResponse struct {
	Items []itemResponse `json:"items"`
}

type itemEnvelope struct {
	Item itemResponse `json:"item"`
}

func toItemResponse(v plant.View) itemResponse {
	return itemResponse{
		ID:            v.ID,
		Name:          v.Name,
		Species:       v.Species,
		LastWatered:   plant.FormatDate(v.LastWatered),
		IntervalDays:  v.IntervalDays,
		Sunlight:      string(v.Sunlight),
		Indoors:       v.Indoors,
		Notes:         v.Notes,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
		NextWaterDate: plant.FormatDate(v.NextWaterDate),
		Status: statusResponse{
			Code:         string(v.Status.Code),
			Label:        v.Status.Label,
			Severity:     v.Status.Severity,
			DaysUntilDue: v.Status.DaysUntilDue,
		},
	}
}

// ListItems は呼び出し元の植物一覧を新しい順に返す。
// GET /api/items
func (h *PlantHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	views, err := h.service.List(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]itemResponse, len(views))
	for i, v := range views {
		items[i] = toItemResponse(v)
	}
	writeJSON(w, http.StatusOK, itemListResponse{Items: items})
}

// CreateItem は植物を作成する。
// POST /api/items
func (h *PlantHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req plantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	view, err := h.service.Create(r.Context(), caller, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record(plantOpCreate)
	writeJSON(w, http.StatusCreated, itemEnvelope{Item: toItemResponse(*view)})
}

// UpdateItem は植物の全フィールドを更新する。
// PUT /api/items/{id}
func (h *PlantHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req plantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	view, err := h.service.Update(r.Context(), caller, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record(plantOpUpdate)
	writeJSON(w, http.StatusOK, itemEnvelope{Item: toItemResponse(*view)})
}

// DeleteItem は植物を削除する。
// DELETE /api/items/{id}
func (h *PlantHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	h.record(plantOpDelete)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *PlantHandler) record(op string) {
	if h.recorder != nil {
		h.recorder.RecordPlantOperation(op)
	}
}
