// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlogd/chatlogd/internal/respond"
	"github.com/chatlogd/chatlogd/internal/store"
)

func TestChannelKind(t *testing.T) {
	k, err := channelKind("channel", "somechannel")
	require.NoError(t, err)
	assert.Equal(t, store.ChannelByLogin, k)

	k, err = channelKind("channelid", "123")
	require.NoError(t, err)
	assert.Equal(t, store.ChannelByID, k)

	_, err = channelKind("channelid", "notanumber")
	assert.Error(t, err)

	_, err = channelKind("bogus", "123")
	assert.Error(t, err)
}

func TestUserKindOf(t *testing.T) {
	k, err := userKindOf("user", "alice")
	require.NoError(t, err)
	assert.Equal(t, store.UserByLogin, k)

	k, err = userKindOf("userid", "42")
	require.NoError(t, err)
	assert.Equal(t, store.UserByID, k)

	_, err = userKindOf("userid", "alice")
	assert.Error(t, err)

	_, err = userKindOf("bogus", "42")
	assert.Error(t, err)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, isNumeric("12345"))
	assert.False(t, isNumeric(""))
	assert.False(t, isNumeric("12a45"))
}

func TestParseFormatPrecedence(t *testing.T) {
	assert.Equal(t, respond.JSONFull, parseFormat(url.Values{"json": {""}, "raw": {""}}))
	assert.Equal(t, respond.JSONBasic, parseFormat(url.Values{"json_basic": {""}}))
	assert.Equal(t, respond.Raw, parseFormat(url.Values{"raw": {""}}))
	assert.Equal(t, respond.NDJSON, parseFormat(url.Values{"ndjson": {""}}))
	assert.Equal(t, respond.Text, parseFormat(url.Values{}))
}

func TestApplyRangeFlags(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?reverse&limit=10&offset=5", nil)
	var rq store.RangeQuery
	require.NoError(t, applyRangeFlags(req, &rq))
	assert.True(t, rq.Reverse)
	require.True(t, rq.HasLimit)
	assert.Equal(t, uint64(10), rq.Limit)
	require.True(t, rq.HasOffset)
	assert.Equal(t, uint64(5), rq.Offset)
}

func TestApplyRangeFlagsRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=notanumber", nil)
	var rq store.RangeQuery
	assert.Error(t, applyRangeFlags(req, &rq))
}

func newTestRouter(api *API) *mux.Router {
	r := mux.NewRouter()
	api.MountRoutes(r)
	return r
}

func TestGetDayRejectsInvalidKind(t *testing.T) {
	api := New(nil, nil, nil)
	r := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/bogus/chan/2024/1/2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDayRejectsNonNumericChannelID(t *testing.T) {
	api := New(nil, nil, nil)
	r := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/channelid/notanumber/2024/1/2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDayRejectsOutOfRangeMonth(t *testing.T) {
	api := New(nil, nil, nil)
	r := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/channel/chan/2024/13/2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserMonthRejectsInvalidUserKind(t *testing.T) {
	api := New(nil, nil, nil)
	r := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/channel/chan/bogus/alice/2024/1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserMonthRejectsNonNumericUserID(t *testing.T) {
	api := New(nil, nil, nil)
	r := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/channel/chan/userid/alice/2024/1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChannelDatesRequiresChannelID(t *testing.T) {
	api := New(nil, nil, nil)
	r := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/channel/chan/dates", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
