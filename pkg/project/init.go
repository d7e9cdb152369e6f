package project

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const manifestTemplate = `[package]
name = "my-contract"
version = "1.0.3"

[build]
target = "wasm32-unknown-unknown"
gas_metering = true

[networks.localhost]
url = "http://127.0.0.1:8545"
chain_id = 1337
`

const exampleContract = `use std::math::sub;
use std::collections::HashMap;

contract MyContract {
    storage balances: HashMap<Address, u64>;

    fn transfer(to: Address, amount: u64) -> Result<()> {
        let sender = caller();
        let bal = self.balances.get(sender).unwrap_or(0);

        // Safe math: reverts instead of wrapping.
        let new_bal = sub(bal, amount)?;

        self.balances.insert(sender, new_bal);
        self.balances.insert(to, self.balances.get(to).unwrap_or(0) + amount);

        Ok(())
    }

    fn balance_of(who: Address) -> u64 {
        return self.balances.get(who).unwrap_or(0);
    }
}
`

const exampleTest = `use std::collections::HashMap;

contract TransferTest {
    storage balances: HashMap<Address, u64>;

    fn test_insert_and_read() {
        self.balances.insert(caller(), 100);
        require(self.balances.get(caller()).unwrap_or(0) == 100, "balance not stored");
    }

    fn test_missing_key_defaults() {
        require(self.balances.get(caller()).unwrap_or(0) == 0);
    }
}
`

// Init scaffolds a new project in dir: manifest, an example contract
// under src/, and a tests/ directory with one passing test file.
// It refuses to overwrite an existing manifest.
func Init(dir string) ([]string, error) {
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
		return nil, errors.Errorf("%s already exists in %s", ManifestName, dir)
	}

	for _, sub := range []string{"src", "tests"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not create %s", sub)
		}
	}

	files := []struct {
		rel     string
		content string
	}{
		{ManifestName, manifestTemplate},
		{filepath.Join("src", "contract.stc"), exampleContract},
		{filepath.Join("tests", "transfer_test.stc"), exampleTest},
	}

	var created []string
	for _, f := range files {
		path := filepath.Join(dir, f.rel)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return nil, errors.Wrapf(err, "could not write %s", f.rel)
		}
		created = append(created, f.rel)
	}
	created = append(created, "tests/")
	return created, nil
}
