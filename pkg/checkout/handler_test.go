package checkout_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart/carttest"
	"github.com/platinummonkey/tenantcart/pkg/checkout"
)

func newRouter(f *fixture) *mux.Router {
	router := mux.NewRouter()
	checkout.NewHandlers(f.processor(), f.drafts).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandlers_PreviewCart(t *testing.T) {
	f := newFixture()
	f.store.AddProduct(carttest.Plan(10, "starter", "20", 1, billing.DurationMonth))
	router := newRouter(f)

	w := serve(router, "POST", "/v1/cart/preview", `{"products":[{"slug":"starter"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "new", body["cart_type"])
	assert.Equal(t, true, body["valid"])

	w = serve(router, "POST", "/v1/cart/preview", `{"products":[{"slug":"missing"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "missing-product")

	w = serve(router, "POST", "/v1/cart/preview", `{"produts":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Checkout(t *testing.T) {
	f := newFixture()
	f.store.AddProduct(carttest.Plan(10, "starter", "20", 1, billing.DurationMonth))
	router := newRouter(f)

	w := serve(router, "POST", "/v1/checkout",
		`{"cart":{"products":[{"slug":"starter"}]},"gateway_id":"card","customer":{"email":"new@example.com"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "card", body["gateway_id"])
	assert.Equal(t, "pending", body["payment_status"])
	assert.NotZero(t, body["payment_id"])
	assert.Nil(t, body["errors"])
}

func TestHandlers_CheckoutErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		f := newFixture()
		f.store.AddProduct(carttest.Plan(10, "starter", "20", 1, billing.DurationMonth))

		w := serve(newRouter(f), "POST", "/v1/checkout",
			`{"cart":{"products":[{"slug":"starter"}]},"customer":{"email":"new@example.com"}}`)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), checkout.CodeNoGateway)
	})

	t.Run("submission hides details", func(t *testing.T) {
		f := newFixture()
		f.store.AddProduct(carttest.Plan(10, "starter", "20", 1, billing.DurationMonth))
		f.tx.panicWith = "nil map"

		w := serve(newRouter(f), "POST", "/v1/checkout",
			`{"cart":{"products":[{"slug":"starter"}]},"gateway_id":"card","customer":{"email":"new@example.com"}}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), checkout.CodeOrderSubmission)
		assert.NotContains(t, w.Body.String(), "stack")
	})

	t.Run("gateway", func(t *testing.T) {
		f := newFixture()
		f.store.AddProduct(carttest.Plan(10, "starter", "20", 1, billing.DurationMonth))
		f.card.err = errGatewayDown

		w := serve(newRouter(f), "POST", "/v1/checkout",
			`{"cart":{"products":[{"slug":"starter"}]},"gateway_id":"card","customer":{"email":"new@example.com"}}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		body := decode(t, w)
		assert.NotZero(t, body["payment_id"])
		assert.Contains(t, w.Body.String(), errGatewayDown.Error())
	})
}

func TestHandlers_Drafts(t *testing.T) {
	f := newFixture()
	router := newRouter(f)

	w := serve(router, "POST", "/v1/checkout/drafts", `{"cart":{"products":[{"slug":"starter"}]},"gateway_id":"card"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID, _ := decode(t, w)["session_id"].(string)
	require.NotEmpty(t, sessionID)

	w = serve(router, "GET", "/v1/checkout/drafts/"+sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)
	draft := decode(t, w)["draft"].(map[string]any)
	assert.Equal(t, "card", draft["gateway_id"])

	w = serve(router, "PUT", "/v1/checkout/drafts/"+sessionID, `{"gateway_id":"manual"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = serve(router, "GET", "/v1/checkout/drafts/"+sessionID, "")
	draft = decode(t, w)["draft"].(map[string]any)
	assert.Equal(t, "manual", draft["gateway_id"])

	w = serve(router, "DELETE", "/v1/checkout/drafts/"+sessionID, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	<-f.drafts.deleted

	w = serve(router, "GET", "/v1/checkout/drafts/"+sessionID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_NoDraftRoutesWithoutStore(t *testing.T) {
	f := newFixture()
	router := mux.NewRouter()
	checkout.NewHandlers(f.processor(), nil).RegisterRoutes(router)

	w := serve(router, "GET", "/v1/checkout/drafts/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
