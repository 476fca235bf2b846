package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgents_Namespace_Default(t *testing.T) {
	t.Parallel()

	ns := Default()
	require.NoError(t, ns.Validate())
	require.Equal(t, "agents_lab.product", ns.String())
	require.Equal(t, "agents_lab__product", ns.Database())
	require.Equal(t, "agents_lab__product.policies", ns.Table("policies"))
	require.Equal(t, "agents_lab.product.get_todays_date", ns.FullName("get_todays_date"))
}

func TestAgents_Namespace_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ns      Namespace
		wantErr string
	}{
		{name: "missing catalog", ns: Namespace{Schema: "product"}, wantErr: "catalog is required"},
		{name: "missing schema", ns: Namespace{Catalog: "agents_lab"}, wantErr: "schema is required"},
		{name: "dash in catalog", ns: Namespace{Catalog: "agents-lab", Schema: "product"}, wantErr: "invalid catalog"},
		{name: "leading digit in schema", ns: Namespace{Catalog: "lab", Schema: "1product"}, wantErr: "invalid schema"},
		{name: "separator in schema", ns: Namespace{Catalog: "lab", Schema: "a__b"}, wantErr: "must not contain"},
		{name: "catalog ends with underscore", ns: Namespace{Catalog: "agents_", Schema: "lab"}, wantErr: "underscore"},
		{name: "schema starts with underscore", ns: Namespace{Catalog: "agents", Schema: "_lab"}, wantErr: "underscore"},
		{name: "valid", ns: Namespace{Catalog: "dev_lab", Schema: "product_v2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.ns.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAgents_Namespace_ParseFullName(t *testing.T) {
	t.Parallel()

	ns, name, err := ParseFullName("agents_lab.product.get_todays_date")
	require.NoError(t, err)
	require.Equal(t, Default(), ns)
	require.Equal(t, "get_todays_date", name)

	_, _, err = ParseFullName("agents_lab.get_todays_date")
	require.ErrorContains(t, err, "expected catalog.schema.name")

	_, _, err = ParseFullName("agents_lab.product.get todays date")
	require.ErrorContains(t, err, "invalid identifier")
}

func TestAgents_Namespace_DatabaseIsUnique(t *testing.T) {
	t.Parallel()

	candidates := []Namespace{
		{Catalog: "agents_", Schema: "lab"},
		{Catalog: "agents", Schema: "_lab"},
		{Catalog: "agents", Schema: "lab_"},
		{Catalog: "_agents", Schema: "lab"},
		{Catalog: "agents_lab", Schema: "product"},
		{Catalog: "agents", Schema: "lab_product"},
		{Catalog: "a", Schema: "b"},
		{Catalog: "a_", Schema: "_b"},
	}
	seen := map[string]Namespace{}
	for _, ns := range candidates {
		if ns.Validate() != nil {
			continue
		}
		db := ns.Database()
		if other, ok := seen[db]; ok {
			t.Fatalf("namespaces %s and %s share database %s", other, ns, db)
		}
		seen[db] = ns
	}
	require.Len(t, seen, 5)
}
