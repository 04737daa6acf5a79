package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"learncode/internal/apperr"
	"learncode/internal/wallet"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Purchase(ctx context.Context, userID, itemID int) (*wallet.Purchase, bool, error) {
	args := m.Called(ctx, userID, itemID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*wallet.Purchase), args.Bool(1), args.Error(2)
}

func (m *MockService) HasAccess(ctx context.Context, userID, itemID int) (bool, error) {
	args := m.Called(ctx, userID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockService) ListPurchases(ctx context.Context, userID int) ([]wallet.Purchase, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]wallet.Purchase), args.Error(1)
}

func newRouter(h *Handler, userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	r.POST("/wallet/buy-video", h.Buy)
	r.GET("/purchases", h.List)
	r.GET("/items/:itemID/access", h.Access)
	return r
}

func buy(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/wallet/buy-video", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Buy(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(svc *MockService)
		wantStatus int
		wantOwned  bool
	}{
		{
			name: "settled",
			body: `{"item_id":7}`,
			setup: func(svc *MockService) {
				svc.On("Purchase", mock.Anything, 5, 7).Return(&wallet.Purchase{ID: 1, ItemID: 7}, false, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "already owned",
			body: `{"item_id":7}`,
			setup: func(svc *MockService) {
				svc.On("Purchase", mock.Anything, 5, 7).Return(&wallet.Purchase{ID: 1, ItemID: 7}, true, nil)
			},
			wantStatus: http.StatusOK,
			wantOwned:  true,
		},
		{
			name: "insufficient balance",
			body: `{"item_id":7}`,
			setup: func(svc *MockService) {
				svc.On("Purchase", mock.Anything, 5, 7).
					Return(nil, false, apperr.New(apperr.InsufficientBalance, "insufficient wallet balance"))
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "free item",
			body: `{"item_id":7}`,
			setup: func(svc *MockService) {
				svc.On("Purchase", mock.Anything, 5, 7).
					Return(nil, false, apperr.New(apperr.ItemNotPriced, "item is free and cannot be purchased"))
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing item id",
			body:       `{}`,
			setup:      func(svc *MockService) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setup(svc)

			w := buy(newRouter(NewHandler(svc), 5), tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if w.Code == http.StatusOK {
				var got BuyResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, tt.wantOwned, got.AlreadyOwned)
				assert.Equal(t, 7, got.Purchase.ItemID)
			}
		})
	}
}

func TestHandler_Access(t *testing.T) {
	svc := new(MockService)
	svc.On("HasAccess", mock.Anything, 5, 3).Return(true, nil)

	w := httptest.NewRecorder()
	newRouter(NewHandler(svc), 5).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/3/access", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"item_id":3,"has_access":true}`, w.Body.String())
}

func TestHandler_List(t *testing.T) {
	svc := new(MockService)
	svc.On("ListPurchases", mock.Anything, 5).Return([]wallet.Purchase{{ID: 1, ItemID: 3}}, nil)

	w := httptest.NewRecorder()
	newRouter(NewHandler(svc), 5).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/purchases", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got []wallet.Purchase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 1)
}
