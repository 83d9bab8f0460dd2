package collection

type account struct {
	ID      OID[account]
	Name    string
	Balance int64
	Tags    []string
}

func (a *account) GetID() OID[account] {
	return a.ID
}

func (a *account) SetID(id OID[account]) {
	a.ID = id
}

func (a account) Clone() account {
	a.Tags = append([]string(nil), a.Tags...)
	return a
}

func byName(a, b *account) bool {
	return a.Name < b.Name
}

func byBalance(a, b *account) bool {
	return a.Balance < b.Balance
}

func Environment(cache bool, f func(c *Collection[account, *account])) {
	c, err := NewCollection[account](&Options[account]{
		Name:   "account",
		TypeID: 1,
		Cache:  cache,
		Indexes: []*IndexOptions[account]{
			{Name: "by_name", Unique: true, Less: byName},
			{Name: "by_balance", Less: byBalance},
		},
	})
	if err != nil {
		panic(err)
	}
	f(c)
}

type dump struct {
	Rows   []account
	NextID OID[account]
}

func dumpOf(c *Collection[account, *account]) dump {
	d := dump{NextID: c.NextID()}
	c.Traverse("", nil, func(a account) bool {
		d.Rows = append(d.Rows, a)
		return true
	})
	return d
}

func backupOf(c *Collection[account, *account]) []account {
	result := []account{}
	c.TraverseBackup(func(a account) bool {
		result = append(result, a)
		return true
	})
	return result
}

func create(c *Collection[account, *account], name string, balance int64) account {
	a, err := c.Create(func(a *account) {
		a.Name = name
		a.Balance = balance
	})
	if err != nil {
		panic(err)
	}
	return a
}

func setBalance(balance int64) func(a *account) {
	return func(a *account) {
		a.Balance = balance
	}
}
