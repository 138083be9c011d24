package cli

import (
	"github.com/spf13/cobra"

	"github.com/FranksOps/brandwatch/internal/dashboard"
)

func newServeCmd(st *state) *cobra.Command {
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs and start new ones over a JSON API",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := st.App()
			if err != nil {
				return err
			}
			store, err := a.Store(c.Context())
			if err != nil {
				return err
			}
			cfg := dashboard.Config{
				Addr:        st.cfg.Server.Addr,
				Store:       store,
				Credentials: st.cfg.Credentials(),
				Limit:       st.cfg.Search.Limit,
				Logger:      st.logger,
			}
			if !readOnly {
				cfg.Runner = a.Monitor(store)
			}
			srv, err := dashboard.New(cfg)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(c.Context())
		},
	}
	cmd.Flags().String("addr", ":5000", "Listen address")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Disable starting runs over the API")
	st.bind("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
