package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/cosmic-journey/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

// fakePocketBase serves one collection from a map and records requests.
type fakePocketBase struct {
	mu      sync.Mutex
	records map[string]map[string]any
	queries []string
	auth    []string
	patches int
	fail    bool
}

func (f *fakePocketBase) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakePocketBase) stats() (queries, auth []string, patches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...), append([]string(nil), f.auth...), f.patches
}

func (f *fakePocketBase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"message":"boom"}`))
		return
	}
	if r.URL.Path == "/api/health" {
		_, _ = w.Write([]byte(`{"code":200,"message":"API is healthy."}`))
		return
	}

	const prefix = "/api/collections/runs/records"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
	notFound := func() {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404,"message":"The requested resource wasn't found."}`))
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		f.queries = append(f.queries, r.URL.RawQuery)
		items := make([]map[string]any, 0, len(f.records))
		for _, rec := range f.records {
			items = append(items, rec)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"page": 1, "perPage": 30, "totalItems": len(items), "totalPages": 1, "items": items,
		})
	case r.Method == http.MethodGet:
		rec, ok := f.records[id]
		if !ok {
			notFound()
			return
		}
		_ = json.NewEncoder(w).Encode(rec)
	case r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = "pb" + string(rune('a'+len(f.records)))
		body["collectionId"] = "c1"
		body["collectionName"] = "runs"
		body["created"] = "2024-10-24 12:00:00.000Z"
		body["updated"] = "2024-10-24 12:00:00.000Z"
		f.records[body["id"].(string)] = body
		_ = json.NewEncoder(w).Encode(body)
	case r.Method == http.MethodPatch:
		rec, ok := f.records[id]
		if !ok {
			notFound()
			return
		}
		f.patches++
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		for k, v := range body {
			rec[k] = v
		}
		_ = json.NewEncoder(w).Encode(rec)
	case r.Method == http.MethodDelete:
		if _, ok := f.records[id]; !ok {
			notFound()
			return
		}
		delete(f.records, id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestPocketBaseStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a PocketBase server", t, func() {
		fake := &fakePocketBase{records: map[string]map[string]any{}}
		srv := httptest.NewServer(fake)
		defer srv.Close()

		store, err := repository.NewPocketBaseStore(srv.URL+"/", repository.WithToken("admin-token"),
			repository.WithTimeout(time.Second))
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("When creating a run", func() {
			rec, err := store.Create(ctx, "runs", map[string]any{"user": "u1", "level": 1, "progress": 0})
			So(err, ShouldBeNil)

			Convey("Then the record is decoded without collection metadata", func() {
				So(rec.ID, ShouldEqual, "pba")
				So(rec.Revision, ShouldEqual, 1)
				So(rec.Created, ShouldEqual, time.Date(2024, 10, 24, 12, 0, 0, 0, time.UTC))
				So(rec.String("user"), ShouldEqual, "u1")
				_, hasMeta := rec.Fields["collectionName"]
				So(hasMeta, ShouldBeFalse)
				_, auth, _ := fake.stats()
				So(auth[0], ShouldEqual, "admin-token")
			})

			Convey("Then a conditional update bumps the revision", func() {
				upd, err := store.Update(ctx, "runs", rec.ID, map[string]any{"progress": 40}, repository.IfRevision(1))
				So(err, ShouldBeNil)
				So(upd.Revision, ShouldEqual, 2)
				So(upd.Float("progress"), ShouldEqual, 40.0)
			})

			Convey("Then a stale revision is rejected before patching", func() {
				_, err := store.Update(ctx, "runs", rec.ID, map[string]any{"progress": 40}, repository.IfRevision(7))
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				_, _, patches := fake.stats()
				So(patches, ShouldEqual, 0)
			})

			Convey("Then it can be deleted", func() {
				So(store.Delete(ctx, "runs", rec.ID), ShouldBeNil)
				So(errors.Is(store.Delete(ctx, "runs", rec.ID), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When listing with a filter and sort", func() {
			_, err := store.Create(ctx, "runs", map[string]any{"user": "u1", "level": 2})
			So(err, ShouldBeNil)
			res, err := store.GetList(ctx, "runs", 1, 30, repository.ListOptions{
				Filter: repository.Where(repository.Eq("user", "u1"), repository.Gte("level", 2)),
				Sort:   repository.MustParseSort("-level,-progress"),
			})

			Convey("Then the query carries PocketBase syntax", func() {
				So(err, ShouldBeNil)
				So(res.TotalItems, ShouldEqual, 1)
				So(len(res.Items), ShouldEqual, 1)
				queries, _, _ := fake.stats()
				So(queries, ShouldHaveLength, 1)
				So(queries[0], ShouldContainSubstring, "filter=user+%3D+%27u1%27+%26%26+level+%3E%3D+2")
				So(queries[0], ShouldContainSubstring, "sort=-level%2C-progress")
			})
		})

		Convey("When the full list is requested", func() {
			for i := 0; i < 3; i++ {
				_, err := store.Create(ctx, "runs", map[string]any{"user": "u1"})
				So(err, ShouldBeNil)
			}
			all, err := store.GetFullList(ctx, "runs", repository.ListOptions{})

			Convey("Then every record is returned", func() {
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 3)
			})
		})

		Convey("When a record is missing", func() {
			_, err := store.GetOne(ctx, "runs", "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = store.GetFirstListItem(ctx, "runs", repository.ListOptions{})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the server fails", func() {
			fake.setFail(true)
			_, err := store.GetOne(ctx, "runs", "x")
			So(errors.Is(err, repository.ErrUpstream), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "boom")
			So(errors.Is(store.Ping(ctx), repository.ErrUpstream), ShouldBeTrue)
		})

		Convey("Ping hits the health endpoint", func() {
			So(store.Ping(ctx), ShouldBeNil)
		})
	})

	Convey("Given an invalid base URL", t, func() {
		_, err := repository.NewPocketBaseStore("not a url")
		So(errors.Is(err, repository.ErrInvalidInput), ShouldBeTrue)
	})
}
