package service

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance runs against a ledger database at revision 2, with
// irreversible revision 0, where:
//   - genesis created alice (100) and bob (0),
//   - block 1 (checkpoint) moved 30 from alice to bob,
//   - block 2 moved 10 from bob to alice,
//   - the cache was drained, so the backup image holds the state after
//     block 1.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	a.Alternative("Get status", func(a *biff.A) {
		resp := apiRequest("GET", "/status").Do()
		Save(resp, "Get status", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		body := resp.BodyJsonMap()
		biff.AssertEqual(body["status"], "operating")
		biff.AssertEqual(body["read_only"], false)
		biff.AssertEqual(body["revision"], float64(2))
		biff.AssertEqual(body["irreversible"], float64(0))
	})

	accountIndex := JSON{
		"name":         "account",
		"type_id":      1,
		"rows":         2,
		"revision":     2,
		"undo_begin":   0,
		"undo_end":     2,
		"cache_frames": 1,
		"backup_rows":  2,
	}

	receiptIndex := JSON{
		"name":         "receipt",
		"type_id":      2,
		"rows":         2,
		"revision":     2,
		"undo_begin":   0,
		"undo_end":     2,
		"cache_frames": 1,
		"backup_rows":  1,
	}

	a.Alternative("List indexes", func(a *biff.A) {
		resp := apiRequest("GET", "/indexes").Do()
		Save(resp, "List indexes", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), []JSON{accountIndex, receiptIndex})
	})

	a.Alternative("Get index", func(a *biff.A) {
		resp := apiRequest("GET", "/indexes/account").Do()
		Save(resp, "Get index", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), accountIndex)
	})

	a.Alternative("Get index - not found", func(a *biff.A) {
		resp := apiRequest("GET", "/indexes/unknown").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"error": JSON{
				"message":     "index not found: 'unknown'",
				"description": "the requested index or record does not exist",
			},
		})
	})

	a.Alternative("Get record", func(a *biff.A) {
		resp := apiRequest("GET", "/indexes/account/records/0").Do()
		Save(resp, "Get record", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"id":      0,
			"name":    "alice",
			"balance": 80,
		})
	})

	a.Alternative("Get record - not found", func(a *biff.A) {
		resp := apiRequest("GET", "/indexes/account/records/99").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Get record - invalid id", func(a *biff.A) {
		resp := apiRequest("GET", "/indexes/account/records/abc").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Find with filter", func(a *biff.A) {
		resp := apiRequest("POST", "/indexes/account:find").
			WithBodyJson(JSON{
				"filter": JSON{
					"balance": JSON{"$gt": 50},
				},
				"limit": 10,
			}).Do()
		Save(resp, "Find with filter", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(lines(resp.BodyString()), []JSON{
			{"id": 0, "name": "alice", "balance": 80},
		})
	})

	a.Alternative("Find with skip and limit", func(a *biff.A) {
		resp := apiRequest("POST", "/indexes/receipt:find").
			WithBodyJson(JSON{
				"skip":  1,
				"limit": 1,
			}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(lines(resp.BodyString()), []JSON{
			{"id": 1, "block": 2, "from": 1, "to": 0, "amount": 10},
		})
	})

	a.Alternative("Find in backup", func(a *biff.A) {
		resp := apiRequest("POST", "/indexes/account:find").
			WithBodyJson(JSON{
				"backup": true,
				"limit":  10,
			}).Do()
		Save(resp, "Find in backup", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(lines(resp.BodyString()), []JSON{
			{"id": 0, "name": "alice", "balance": 70},
			{"id": 1, "name": "bob", "balance": 30},
		})
	})

	a.Alternative("Find - malformed body", func(a *biff.A) {
		resp := apiRequest("POST", "/indexes/account:find").
			WithBodyString(`{"limit": `).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Method not allowed", func(a *biff.A) {
		resp := apiRequest("DELETE", "/indexes/account").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusMethodNotAllowed)
	})
}

func lines(body string) []JSON {
	result := []JSON{}
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		item := JSON{}
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			panic(err)
		}
		result = append(result, item)
	}
	return result
}
