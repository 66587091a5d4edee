package main

import (
	"github.com/spf13/cobra"

	"deptcms/internal/api"
	"deptcms/internal/config"
)

type statusReport struct {
	API      string              `json:"api_url"`
	Health   api.HealthResponse  `json:"health"`
	Identity *api.AuthMeResponse `json:"identity,omitempty"`
}

func newStatusCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check a running server and, with DEPTCMS_API_TOKEN set, the session it resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(cfg.APIURL)
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			report := statusReport{API: cfg.APIURL, Health: health}
			if client.HasToken() {
				me, err := client.Me(cmd.Context())
				if err != nil {
					return err
				}
				report.Identity = &me
			}

			if *jsonOutput {
				return writeJSON(report)
			}
			if err := writePlain("%s: %s (%d tenants open)\n", report.API, health.Status, health.Tenants); err != nil {
				return err
			}
			if report.Identity != nil && report.Identity.Authenticated {
				id := report.Identity
				return writePlain("signed in as %s (%s, %s)\n", id.Username, id.Department, id.Role)
			}
			return nil
		},
	}
}
