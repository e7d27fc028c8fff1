package gateway

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindProduct(t *testing.T, body string) (productRequest, error) {
	t.Helper()
	var req productRequest
	err := binding.JSON.BindBody([]byte(body), &req)
	return req, err
}

func TestProductRequestAllowsZeroPrice(t *testing.T) {
	req, err := bindProduct(t, `{"name":"Sample Sachet","price":0,"unit":"pc"}`)
	require.NoError(t, err)
	require.NotNil(t, req.Price)
	assert.Equal(t, 0.0, *req.Price)
}

func TestProductRequestRejectsNegativeAndMissingPrice(t *testing.T) {
	_, err := bindProduct(t, `{"name":"Apples","price":-1,"unit":"kg"}`)
	assert.Error(t, err)

	_, err = bindProduct(t, `{"name":"Apples","unit":"kg"}`)
	assert.Error(t, err)
}

func TestProductRequestRequiresNameAndUnit(t *testing.T) {
	_, err := bindProduct(t, `{"price":10,"unit":"kg"}`)
	assert.Error(t, err)

	_, err = bindProduct(t, `{"name":"Apples","price":10}`)
	assert.Error(t, err)
}
