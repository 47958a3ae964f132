package servicenow

import "testing"

func TestQueryString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() *Query
		want  string
	}{
		{
			name:  "empty",
			build: func() *Query { return NewQuery() },
			want:  "",
		},
		{
			name: "single eq",
			build: func() *Query {
				return NewQuery().Eq("conversation", "abc")
			},
			want: "conversation=abc",
		},
		{
			name: "conjoined terms",
			build: func() *Query {
				return NewQuery().Eq("conversation", "abc").Eq("state", "complete")
			},
			want: "conversation=abc^state=complete",
		},
		{
			name: "or binds to previous term",
			build: func() *Query {
				return NewQuery().
					Eq("conversation", "abc").
					OrEq("execution_plan", "def").
					Eq("state", "complete")
			},
			want: "conversation=abc^ORexecution_plan=def^state=complete",
		},
		{
			name: "or on empty query degrades to eq",
			build: func() *Query {
				return NewQuery().OrEq("conversation", "abc")
			},
			want: "conversation=abc",
		},
		{
			name: "like and after with ordering",
			build: func() *Query {
				return NewQuery().
					Like("message", "plan").
					After("sys_created_on", "2026-03-14 00:00:00").
					OrderBy("sys_created_on")
			},
			want: "messageLIKEplan^sys_created_on>2026-03-14 00:00:00^ORDERBYsys_created_on",
		},
		{
			name: "descending order",
			build: func() *Query {
				return NewQuery().Eq("usecase", "triage").OrderByDesc("sys_created_on")
			},
			want: "usecase=triage^ORDERBYDESCsys_created_on",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.build().String(); got != tt.want {
				t.Fatalf("String()=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueryNilString(t *testing.T) {
	t.Parallel()

	var q *Query
	if got := q.String(); got != "" {
		t.Fatalf("nil Query String()=%q, want empty", got)
	}
}
