package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walldraft/internal/collab"
	"walldraft/internal/domain"
)

func (f *apiFixture) dialLive(t *testing.T, draftID, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/v1/drafts/" + draftID + "/live"
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if conn != nil {
		t.Cleanup(func() { conn.CloseNow() })
	}
	return conn, resp, err
}

func (f *apiFixture) waitForSessions(t *testing.T, draftID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.hub.SessionCount(draftID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) collab.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg collab.Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func writeUpdate(t *testing.T, conn *websocket.Conn, wallData string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, collab.Message{
		Type:     collab.TypeWallUpdate,
		WallData: json.RawMessage(wallData),
	}))
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestCollab_EditorsSeeEachOther(t *testing.T) {
	f := newAPIFixture(t)
	draft := f.createDraft(t, aliceToken, "Living room")
	f.do(t, http.MethodGet, "/api/v1/user/profile", bobToken, nil)
	resp := f.do(t, http.MethodPost, "/api/v1/drafts/"+draft.ID+"/share", aliceToken, map[string]interface{}{"userIds": []string{"bob"}})
	require.Equal(t, http.StatusOK, resp.status)

	alice, _, err := f.dialLive(t, draft.ID, "access_token="+aliceToken, nil)
	require.NoError(t, err)
	bob, _, err := f.dialLive(t, draft.ID, "", bearer(bobToken))
	require.NoError(t, err)
	f.waitForSessions(t, draft.ID, 2)

	writeUpdate(t, alice, `{"tiles":[7]}`)

	msg := readFrame(t, bob)
	require.Equal(t, collab.TypeWallUpdate, msg.Type)
	require.JSONEq(t, `{"tiles":[7]}`, string(msg.WallData))

	stored, err := f.drafts.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"tiles":[7]}`, string(stored.WallData))

	// A REST save reaches live sessions as well.
	resp = f.do(t, http.MethodPut, "/api/v1/drafts/"+draft.ID, bobToken, map[string]interface{}{"wallData": map[string]int{"v": 9}})
	require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.body)
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg = readFrame(t, conn)
		require.JSONEq(t, `{"v":9}`, string(msg.WallData))
	}

	require.NoError(t, alice.Close(websocket.StatusNormalClosure, ""))
	f.waitForSessions(t, draft.ID, 1)
}

func TestCollab_ViewerCannotPublish(t *testing.T) {
	f := newAPIFixture(t)
	draft := f.createDraft(t, aliceToken, "Hallway")
	resp := f.do(t, http.MethodPut, "/api/v1/drafts/"+draft.ID+"/public", aliceToken, map[string]interface{}{"linkPermission": "view"})
	require.Equal(t, http.StatusOK, resp.status)
	var link domain.ShareLink
	resp.decode(t, &link)

	viewer, _, err := f.dialLive(t, draft.ID, "token="+link.Token, nil)
	require.NoError(t, err)
	f.waitForSessions(t, draft.ID, 1)

	writeUpdate(t, viewer, `{"tiles":[]}`)
	msg := readFrame(t, viewer)
	require.Equal(t, "error", msg.Type)
	require.NotEmpty(t, msg.Error)

	stored, err := f.drafts.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"tiles":[1]}`, string(stored.WallData))
}

func TestCollab_RevokedLinkClosesSession(t *testing.T) {
	f := newAPIFixture(t)
	draft := f.createDraft(t, aliceToken, "Garage")
	resp := f.do(t, http.MethodPut, "/api/v1/drafts/"+draft.ID+"/public", aliceToken, map[string]interface{}{"linkPermission": "edit"})
	require.Equal(t, http.StatusOK, resp.status)
	var link domain.ShareLink
	resp.decode(t, &link)

	guest, _, err := f.dialLive(t, draft.ID, "token="+link.Token, nil)
	require.NoError(t, err)
	f.waitForSessions(t, draft.ID, 1)

	resp = f.do(t, http.MethodPut, "/api/v1/drafts/"+draft.ID+"/revoke-share", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.status)

	writeUpdate(t, guest, `{"tiles":[3]}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg collab.Message
	err = wsjson.Read(ctx, guest, &msg)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	f.waitForSessions(t, draft.ID, 0)
}

func TestCollab_RevokedViewerStopsReceiving(t *testing.T) {
	f := newAPIFixture(t)
	draft := f.createDraft(t, aliceToken, "Porch")
	resp := f.do(t, http.MethodPut, "/api/v1/drafts/"+draft.ID+"/public", aliceToken, map[string]interface{}{"linkPermission": "view"})
	require.Equal(t, http.StatusOK, resp.status)
	var link domain.ShareLink
	resp.decode(t, &link)

	owner, _, err := f.dialLive(t, draft.ID, "access_token="+aliceToken, nil)
	require.NoError(t, err)
	viewer, _, err := f.dialLive(t, draft.ID, "token="+link.Token, nil)
	require.NoError(t, err)
	f.waitForSessions(t, draft.ID, 2)

	resp = f.do(t, http.MethodPut, "/api/v1/drafts/"+draft.ID+"/revoke-share", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.status)

	resp = f.do(t, http.MethodPut, "/api/v1/drafts/"+draft.ID, aliceToken, map[string]interface{}{"wallData": map[string]int{"v": 2}})
	require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.body)

	msg := readFrame(t, owner)
	require.JSONEq(t, `{"v":2}`, string(msg.WallData))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = wsjson.Read(ctx, viewer, &msg)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	f.waitForSessions(t, draft.ID, 1)
}

func TestCollab_PeersReceiveStoredSnapshot(t *testing.T) {
	f := newAPIFixture(t)
	draft := f.createDraft(t, aliceToken, "Cellar")

	first, _, err := f.dialLive(t, draft.ID, "access_token="+aliceToken, nil)
	require.NoError(t, err)
	second, _, err := f.dialLive(t, draft.ID, "", bearer(aliceToken))
	require.NoError(t, err)
	f.waitForSessions(t, draft.ID, 2)

	writeUpdate(t, first, `null`)

	msg := readFrame(t, second)
	require.Equal(t, collab.TypeWallUpdate, msg.Type)
	require.JSONEq(t, `{}`, string(msg.WallData))

	stored, err := f.drafts.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(stored.WallData))
}

func TestCollab_NoAccessIsRejectedBeforeUpgrade(t *testing.T) {
	f := newAPIFixture(t)
	draft := f.createDraft(t, aliceToken, "Attic")

	_, resp, err := f.dialLive(t, draft.ID, "", bearer(bobToken))
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = f.dialLive(t, "missing", "token=guess", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Zero(t, f.hub.SessionCount(draft.ID))
}

func (f *apiFixture) uploadImage(t *testing.T, draftID, token, contentType string) apiResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="tile.PNG"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/drafts/"+draftID+"/images", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return apiResponse{status: resp.StatusCode, body: raw}
}

func TestAPI_UploadImage(t *testing.T) {
	f := newAPIFixture(t)
	draft := f.createDraft(t, aliceToken, "Porch")

	resp := f.uploadImage(t, draft.ID, aliceToken, "text/plain")
	require.Equal(t, http.StatusBadRequest, resp.status)

	for i := 0; i < 2; i++ {
		resp = f.uploadImage(t, draft.ID, aliceToken, "image/png")
		require.Equal(t, http.StatusCreated, resp.status, "body: %s", resp.body)
	}
	var image domain.DraftImage
	resp.decode(t, &image)
	require.True(t, strings.HasPrefix(image.URL, "https://storage.test/"+draft.ID+"/"))
	require.True(t, strings.HasSuffix(image.URL, ".png"))
	require.NotNil(t, image.UploaderID)

	resp = f.uploadImage(t, draft.ID, aliceToken, "image/png")
	require.Equal(t, http.StatusPaymentRequired, resp.status)

	resp = f.do(t, http.MethodGet, "/api/v1/drafts/image-upload-status?draftId="+draft.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.status)
	require.JSONEq(t, `{"currentUploads":2,"limit":2,"canUploadMore":false,"unlimited":false,"planName":"Free"}`, string(resp.body))

	// Without a share link an anonymous uploader cannot see the draft.
	resp = f.uploadImage(t, draft.ID, "", "image/png")
	require.Equal(t, http.StatusNotFound, resp.status)
}
