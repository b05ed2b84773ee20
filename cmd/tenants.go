package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"neowhatai/internal/entities"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage clients",
}

var tenantsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update clients from a YAML file, matched by WhatsApp session id",
	Long: `Create or update clients from a YAML file. A client is matched by its
whatsapp_session_id: an existing one is updated, otherwise it is created.

Example file:
  tenants:
    - name: Bistrot Plateau
      whatsapp_session_id: sess-bistrot
      whatsapp_token: wsk_...
      webhook_secret: s3cret
      system_prompt: Tu es l'assistant du Bistrot Plateau.
    - name: Archived client
      whatsapp_session_id: sess-old
      is_active: false`,
	Args: cobra.ExactArgs(1),
	RunE: runTenantsImport,
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients with their log and document counts",
	RunE:  runTenantsList,
}

func init() {
	tenantsCmd.AddCommand(tenantsImportCmd)
	tenantsCmd.AddCommand(tenantsListCmd)
}

// tenantRecord is one entry of an import file. Clients are active unless stated otherwise.
type tenantRecord struct {
	entities.Tenant `yaml:",inline"`
	IsActive        *bool `yaml:"is_active"`
}

type tenantFile struct {
	Tenants []tenantRecord `yaml:"tenants"`
}

// parseTenantFile decodes and validates an import file.
func parseTenantFile(r io.Reader) ([]entities.Tenant, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file tenantFile
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty tenant file")
		}
		return nil, fmt.Errorf("decode tenant file: %w", err)
	}

	tenants := make([]entities.Tenant, 0, len(file.Tenants))
	seen := make(map[string]int)
	for i, rec := range file.Tenants {
		t := rec.Tenant
		t.Name = strings.TrimSpace(t.Name)
		t.SessionID = strings.TrimSpace(t.SessionID)
		t.IsActive = rec.IsActive == nil || *rec.IsActive

		if t.Name == "" {
			return nil, fmt.Errorf("tenant #%d: name is required", i+1)
		}
		if t.SessionID == "" {
			return nil, fmt.Errorf("tenant #%d (%s): whatsapp_session_id is required", i+1, t.Name)
		}
		if prev, dup := seen[t.SessionID]; dup {
			return nil, fmt.Errorf("tenant #%d (%s): session %q already used by tenant #%d", i+1, t.Name, t.SessionID, prev)
		}
		seen[t.SessionID] = i + 1
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func runTenantsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	tenants, err := parseTenantFile(f)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var created, updated int
	for i := range tenants {
		t := &tenants[i]
		isNew, err := st.tenants.UpsertBySession(ctx, t)
		if err != nil {
			return fmt.Errorf("import %s: %w", t.Name, err)
		}
		if isNew {
			created++
			logger.Info("tenant created", "tenant_id", t.ID, "name", t.Name, "session_id", t.SessionID)
		} else {
			updated++
			logger.Info("tenant updated", "tenant_id", t.ID, "name", t.Name, "session_id", t.SessionID)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tenant(s): %d created, %d updated\n", len(tenants), created, updated)
	return nil
}

func runTenantsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	summaries, err := st.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tenants.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSESSION\tACTIVE\tDOCS\tLOGS")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\n", s.ID, s.Name, s.SessionID, s.IsActive, s.DocumentCount, s.LogCount)
	}
	return w.Flush()
}
