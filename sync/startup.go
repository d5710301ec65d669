// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"
	"sync"

	"github.com/inkwell/docsync/delta"
	"github.com/inkwell/docsync/editortarget"
	"github.com/inkwell/docsync/wire"
)

// handleStart implements detached/start (spec.md §4.E "Startup sequence").
// The session/snapshot fetch and editor install run on a background
// goroutine; the result is handed back to the dispatch goroutine via
// runOnLoop so currentEvent/snapshot are only ever written from Run.
func handleStart(ctx context.Context, m *Machine, ev Event) {
	m.running = true

	go func() {
		proxy, err := m.session.GetSessionProxy(ctx)
		if err != nil {
			m.post(Event{Kind: EvAPIError, Method: "getSessionProxy", Err: err})
			return
		}

		var wg sync.WaitGroup
		var snap delta.Snapshot
		var logErr, snapErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, logErr = proxy.Call(ctx, "getLogInfo")
		}()
		go func() {
			defer wg.Done()
			result, err := proxy.Call(ctx, "body_getSnapshot")
			if err != nil {
				snapErr = err
				return
			}
			snapErr = wire.DecodeResult(result, &snap)
		}()
		wg.Wait()

		if logErr != nil {
			m.post(Event{Kind: EvAPIError, Method: "getLogInfo", Err: logErr})
			return
		}
		if snapErr != nil {
			m.post(Event{Kind: EvAPIError, Method: "body_getSnapshot", Err: snapErr})
			return
		}

		m.runOnLoop(func(ctx context.Context, m *Machine) {
			m.sessionProxy = proxy
			m.snapshot = snap

			sel := m.editor.GetSelection()
			m.editor.SetContents(snap.Contents, editortarget.SourceDocClient)
			m.editor.SetSelection(sel)

			head := m.editor.Events()
			if first, ok := head.NextNow(); ok {
				if first.Kind() != editortarget.TextChange || first.Source() != editortarget.SourceDocClient {
					m.logger.Debug("sync: first post-install editor event was not a doc-client text change", "kind", first.Kind())
				}
				m.currentEvent = first
			} else {
				m.currentEvent = head
			}
			m.editor.HistoryClear()

			m.enterBecomeEnabled()
			m.post(Event{Kind: EvNextState, Next: Idle})
		})
	}()
}
