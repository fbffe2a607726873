package statusui

import "github.com/mmserver/mmserverd/internal/session"

// LocalFetcher returns a Fetcher reading directly from an in-process
// session.Manager, used when the status UI runs inside the server
// process itself rather than against the management API.
func LocalFetcher(sessions *session.Manager) Fetcher {
	return func() ([]SessionSummary, error) {
		list := sessions.List()
		out := make([]SessionSummary, 0, len(list))
		for _, s := range list {
			out = append(out, SessionSummary{
				ID:          s.ID,
				Application: s.Application,
				State:       s.State().String(),
				Width:       s.Params.Width,
				Height:      s.Params.Height,
				Attached:    s.AttachmentCount() > 0,
			})
		}
		return out, nil
	}
}
